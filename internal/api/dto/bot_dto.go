package dto

type CreateBotRequest struct {
	Name              string         `json:"name" binding:"required"`
	Description       *string        `json:"description"`
	ScriptIdentifier  string         `json:"script_identifier" binding:"required"`
	ParameterSchema   map[string]any `json:"parameter_schema"`
	DefaultParameters map[string]any `json:"default_parameters"`
	IsEnabled         *bool          `json:"is_enabled"`
}

// UpdateBotRequest only changes the fields that are present
type UpdateBotRequest struct {
	Name              *string        `json:"name"`
	Description       *string        `json:"description"`
	ScriptIdentifier  *string        `json:"script_identifier"`
	ParameterSchema   map[string]any `json:"parameter_schema"`
	DefaultParameters map[string]any `json:"default_parameters"`
	IsEnabled         *bool          `json:"is_enabled"`
}

type ListBotsRequest struct {
	Skip      int   `form:"skip"`
	Limit     int   `form:"limit"`
	IsEnabled *bool `form:"is_enabled"`
}
