package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Field describes one JSON property of a response schema.
type Field struct {
	Name     string
	Type     string // OpenAPI type: string, integer, number, boolean, object, array
	Format   string // OpenAPI format: int64, double, date-time
	Nullable bool
}

// schemaFields lists the wire shape of each component schema.
var schemaFields = map[string][]Field{
	"Key": {
		{Name: "id", Type: "integer", Format: "int64"},
		{Name: "keyCode", Type: "string"},
		{Name: "tier", Type: "string"},
		{Name: "discordUserId", Type: "string"},
		{Name: "discordUsername", Type: "string"},
		{Name: "createdAt", Type: "string", Format: "date-time"},
		{Name: "expiresAt", Type: "string", Format: "date-time"},
		{Name: "isActive", Type: "boolean"},
	},
	"Cooldown": {
		{Name: "id", Type: "integer", Format: "int64"},
		{Name: "discordUserId", Type: "string"},
		{Name: "discordUsername", Type: "string"},
		{Name: "lastKeyGenerated", Type: "string", Format: "date-time"},
		{Name: "cooldownEnds", Type: "string", Format: "date-time"},
	},
	"LogEntry": {
		{Name: "id", Type: "integer", Format: "int64"},
		{Name: "timestamp", Type: "string", Format: "date-time"},
		{Name: "level", Type: "string"},
		{Name: "message", Type: "string"},
		{Name: "discordUserId", Type: "string", Nullable: true},
	},
	"User": {
		{Name: "id", Type: "string"},
		{Name: "email", Type: "string"},
		{Name: "firstName", Type: "string"},
		{Name: "profileImageUrl", Type: "string"},
		{Name: "createdAt", Type: "string", Format: "date-time"},
		{Name: "updatedAt", Type: "string", Format: "date-time"},
	},
	"Stats": {
		{Name: "totalKeys", Type: "integer", Format: "int64"},
		{Name: "activeKeys", Type: "integer", Format: "int64"},
		{Name: "usersToday", Type: "integer", Format: "int64"},
		{Name: "successRate", Type: "number", Format: "double"},
	},
	"BotStatus": {
		{Name: "online", Type: "boolean"},
		{Name: "uptime", Type: "string"},
	},
	"ValidationResponse": {
		{Name: "valid", Type: "boolean"},
		{Name: "error", Type: "string"},
		{Name: "expiresAt", Type: "string", Format: "date-time"},
		{Name: "discordUsername", Type: "string"},
		{Name: "message", Type: "string"},
	},
	"ErrorResponse": {
		{Name: "error", Type: "string"},
		{Name: "message", Type: "string"},
	},
}

// Generate builds the OpenAPI 3.1 document for the HTTP API served at baseURL.
func Generate(baseURL, version string) *openapi3.T {
	if version == "" {
		version = "dev"
	}
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Prism API",
			Description: "Dashboard and key validation API for Prism access keys.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["sessionCookie"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "cookie",
			Name: "prism_session",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}

	for name, fields := range schemaFields {
		doc.Components.Schemas[name] = objectSchema(fields)
	}

	doc.Paths = openapi3.NewPaths()
	addDashboardPaths(doc)
	addValidationPaths(doc)

	doc.Paths.Set("/api/bot/status", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"status"},
			Summary:     "Command front-end status",
			OperationID: "bot_status",
			Responses:   newResponses("200", "Connection state and uptime", ref("BotStatus"), false),
		},
	})

	return doc
}

// ─── Path Builders ──────────────────────────────────────────────────────────

func addDashboardPaths(doc *openapi3.T) {
	vip := &openapi3.SecurityRequirements{
		{"sessionCookie": {}},
		{"bearerAuth": {}},
	}

	doc.Paths.Set("/api/auth/user", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"dashboard"},
			Summary:     "Signed-in dashboard user",
			OperationID: "current_user",
			Security:    vip,
			Responses:   newResponses("200", "Stored user profile", ref("User"), true),
		},
	})
	doc.Paths.Set("/api/stats", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"dashboard"},
			Summary:     "Key issuance summary",
			OperationID: "stats",
			Security:    vip,
			Responses:   newResponses("200", "Totals and success rate", ref("Stats"), true),
		},
	})
	doc.Paths.Set("/api/keys/recent", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"dashboard"},
			Summary:     "Most recently issued keys",
			OperationID: "recent_keys",
			Security:    vip,
			Parameters:  openapi3.Parameters{limitParameter(10)},
			Responses:   newResponses("200", "Keys, newest first", arrayOf("Key"), true),
		},
	})
	doc.Paths.Set("/api/cooldowns", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"dashboard"},
			Summary:     "Cooldown markers",
			OperationID: "cooldowns",
			Security:    vip,
			Responses:   newResponses("200", "Cooldowns, latest issuance first", arrayOf("Cooldown"), true),
		},
	})
	doc.Paths.Set("/api/logs", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"dashboard"},
			Summary:     "Recent audit entries",
			OperationID: "logs",
			Security:    vip,
			Parameters:  openapi3.Parameters{limitParameter(50)},
			Responses:   newResponses("200", "Audit entries, newest first", arrayOf("LogEntry"), true),
		},
	})
}

func addValidationPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/keys/validate/{keyCode}/{discordUserId}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "Validate a key for a caller",
			Description: "Short-tier keys are only valid for their owner. Negative outcomes return 200 with valid=false.",
			OperationID: "validate_key",
			Parameters: openapi3.Parameters{
				pathParameter("keyCode", "Key code"),
				pathParameter("discordUserId", "Caller's Discord user id"),
			},
			Responses: newResponses("200", "Validation outcome", ref("ValidationResponse"), false),
		},
	})

	legacy := &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"valid":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
			"key":     ref("Key"),
			"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
		},
	}}
	doc.Paths.Set("/api/keys/validate/{keyCode}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"keys"},
			Summary:     "Validate a key without an ownership check",
			Deprecated:  true,
			OperationID: "validate_key_legacy",
			Parameters:  openapi3.Parameters{pathParameter("keyCode", "Key code")},
			Responses:   newResponses("200", "Validation outcome", legacy, false),
		},
	})
}

// ─── Schema Helpers ─────────────────────────────────────────────────────────

func objectSchema(fields []Field) *openapi3.SchemaRef {
	props := openapi3.Schemas{}
	for _, f := range fields {
		props[f.Name] = &openapi3.SchemaRef{Value: fieldSchema(f)}
	}
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
	}}
}

func fieldSchema(f Field) *openapi3.Schema {
	types := openapi3.Types{f.Type}
	if f.Nullable {
		types = append(types, "null")
	}
	s := &openapi3.Schema{Type: &types}
	if f.Format != "" {
		s.Format = f.Format
	}
	return s
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func arrayOf(name string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:  &openapi3.Types{"array"},
		Items: ref(name),
	}}
}

func pathParameter(name, description string) *openapi3.ParameterRef {
	return &openapi3.ParameterRef{
		Value: openapi3.NewPathParameter(name).
			WithDescription(description).
			WithSchema(openapi3.NewStringSchema()),
	}
}

func limitParameter(def int) *openapi3.ParameterRef {
	p := openapi3.NewQueryParameter("limit")
	p.Description = "Maximum number of records to return (1-500)."
	p.Schema = &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:    &openapi3.Types{"integer"},
		Format:  "int32",
		Default: def,
	}}
	return &openapi3.ParameterRef{Value: p}
}

// newResponses builds the success response plus the standard error
// responses. secured adds 401 and 403.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef, secured bool) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := ref("ErrorResponse")
	errs := []struct{ code, desc string }{{"500", "Internal server error"}}
	if secured {
		errs = append(errs,
			struct{ code, desc string }{"401", "Unauthorized"},
			struct{ code, desc string }{"403", "Access denied. VIP users only."},
		)
	}
	for _, e := range errs {
		desc := e.desc
		responses.Set(e.code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}
