// Package ticket turns a chat transcript into a validated ticket record
// via a structured-output agent.
package ticket

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
)

// Record is the structured result of extracting a ticket from a
// conversation. All fields are free text; missing information is left
// empty rather than invented.
type Record struct {
	Title          string `json:"title" jsonschema:"description=Short title summarizing the request"`
	Description    string `json:"description" jsonschema:"description=What the requester needs and why"`
	Requirements   string `json:"requirements" jsonschema:"description=Concrete requirements stated in the conversation"`
	Constraints    string `json:"constraints" jsonschema:"description=Deadlines and priorities and other limits"`
	AdditionalInfo string `json:"additional_info" jsonschema:"description=Any other details worth recording"`
}

// FormatText renders the record as plain text, suitable for writing to a
// file or pasting into an external ticket system.
func (r Record) FormatText() string {
	return fmt.Sprintf(
		"Title: %s\n\nDescription: %s\n\nRequirements: %s\n\nConstraints: %s\n\nAdditional Info: %s\n",
		r.Title, r.Description, r.Requirements, r.Constraints, r.AdditionalInfo,
	)
}

// Markdown renders the record for terminal display.
func (r Record) Markdown() string {
	return fmt.Sprintf(
		"# %s\n\n## Description\n\n%s\n\n## Requirements\n\n%s\n\n## Constraints\n\n%s\n\n## Additional Info\n\n%s\n",
		r.Title, r.Description, r.Requirements, r.Constraints, r.AdditionalInfo,
	)
}

// Schema returns the JSON schema for Record, generated once from the
// struct tags. It is embedded in the extraction prompt and passed to
// structured-output providers as a response format.
var Schema = sync.OnceValue(func() json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(Record{})
	data, err := json.Marshal(schema)
	if err != nil {
		// Reflecting a plain struct of strings cannot fail.
		panic(fmt.Sprintf("ticket: failed to generate record schema: %v", err))
	}
	return json.RawMessage(data)
})
