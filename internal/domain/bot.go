package domain

import "time"

// BotConfiguration is the named reference to a script plus its parameters
type BotConfiguration struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Description       *string   `db:"description" json:"description,omitempty"`
	ScriptIdentifier  string    `db:"script_identifier" json:"script_identifier"`
	ParameterSchema   JSONMap   `db:"parameter_schema" json:"parameter_schema,omitempty"`
	DefaultParameters JSONMap   `db:"default_parameters" json:"default_parameters,omitempty"`
	IsEnabled         bool      `db:"is_enabled" json:"is_enabled"`
	CreatedBy         *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// MergeParameters overlays params on the bot's defaults. The result is a new
// map so the snapshot stored on a job never aliases the bot record.
func (b *BotConfiguration) MergeParameters(params map[string]any) JSONMap {
	merged := make(JSONMap, len(b.DefaultParameters)+len(params))
	for k, v := range b.DefaultParameters {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}
