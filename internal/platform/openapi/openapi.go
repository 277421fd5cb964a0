package openapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Generator builds the OpenAPI 3.0 document for the patient API.
type Generator struct {
	version  string
	basePath string
}

// NewGenerator creates a generator whose server URL is basePath, e.g. "/v1".
func NewGenerator(version, basePath string) *Generator {
	return &Generator{version: version, basePath: basePath}
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{"schema": schema},
	}
}

func response(description, schema string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content":     jsonContent(ref(schema)),
	}
}

func errorResponse(description string) map[string]interface{} {
	return response(description, "ErrorResponse")
}

var patientIDParam = map[string]interface{}{
	"name":        "patient_id",
	"in":          "path",
	"required":    true,
	"description": "Public patient identifier",
	"schema":      map[string]string{"type": "string", "format": "uuid"},
}

// GenerateSpec produces the document as a map ready for JSON encoding.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := map[string]interface{}{
		"/login": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Exchange credentials for a bearer token",
				"operationId": "login",
				"tags":        []string{"auth"},
				"security":    []map[string][]string{},
				"requestBody": map[string]interface{}{
					"required": true,
					"content":  jsonContent(ref("LoginRequest")),
				},
				"responses": map[string]interface{}{
					"200": response("Signed token", "LoginResponse"),
					"400": errorResponse("Malformed body"),
					"401": errorResponse("Invalid username or password"),
					"429": errorResponse("Too many login attempts"),
					"500": errorResponse("Internal error"),
				},
			},
		},
		"/patient": map[string]interface{}{
			"post": map[string]interface{}{
				"summary":     "Create a patient",
				"operationId": "createPatient",
				"tags":        []string{"patient"},
				"requestBody": map[string]interface{}{
					"required": true,
					"content":  jsonContent(ref("CreatePatientRequest")),
				},
				"responses": map[string]interface{}{
					"200": response("Created patient", "PatientResponse"),
					"400": errorResponse("Malformed or invalid body"),
					"401": errorResponse("Missing or invalid token"),
					"500": errorResponse("Internal error"),
				},
			},
			"get": map[string]interface{}{
				"summary":     "List active patients",
				"operationId": "listPatients",
				"tags":        []string{"patient"},
				"parameters": []map[string]interface{}{
					{"name": "first_name", "in": "query", "schema": map[string]string{"type": "string"}},
					{"name": "surname", "in": "query", "schema": map[string]string{"type": "string"}},
					{"name": "birth_year", "in": "query", "schema": map[string]string{"type": "integer", "format": "int32"}},
				},
				"responses": map[string]interface{}{
					"200": response("Matching patients", "PatientList"),
					"400": errorResponse("Invalid filter"),
					"401": errorResponse("Missing or invalid token"),
					"500": errorResponse("Internal error"),
				},
			},
		},
		"/patient/{patient_id}": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Get a patient",
				"operationId": "getPatient",
				"tags":        []string{"patient"},
				"parameters":  []map[string]interface{}{patientIDParam},
				"responses": map[string]interface{}{
					"200": response("Patient", "PatientResponse"),
					"400": errorResponse("Invalid patient_id"),
					"401": errorResponse("Missing or invalid token"),
					"404": errorResponse("No active patient with this id"),
					"500": errorResponse("Internal error"),
				},
			},
			"patch": map[string]interface{}{
				"summary":     "Update the mutable fields of a patient",
				"description": "name.first, name.surname and the birthdate cannot be changed.",
				"operationId": "updatePatient",
				"tags":        []string{"patient"},
				"parameters":  []map[string]interface{}{patientIDParam},
				"requestBody": map[string]interface{}{
					"required": true,
					"content":  jsonContent(ref("UpdatePatientRequest")),
				},
				"responses": map[string]interface{}{
					"200": response("Updated patient", "PatientResponse"),
					"400": errorResponse("Immutable field or malformed body"),
					"401": errorResponse("Missing or invalid token"),
					"404": errorResponse("No active patient with this id"),
					"500": errorResponse("Internal error"),
				},
			},
			"delete": map[string]interface{}{
				"summary":     "Deactivate a patient",
				"operationId": "deletePatient",
				"tags":        []string{"patient"},
				"parameters":  []map[string]interface{}{patientIDParam},
				"responses": map[string]interface{}{
					"200": response("Patient as it was before deletion", "PatientResponse"),
					"400": errorResponse("Invalid patient_id"),
					"401": errorResponse("Missing or invalid token"),
					"404": errorResponse("No active patient with this id"),
					"500": errorResponse("Internal error"),
				},
			},
		},
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Patient Records API",
			"version":     g.version,
			"description": "Create, read, update and soft-delete patient records.",
		},
		"servers": []map[string]string{
			{"url": g.basePath},
		},
		"security": []map[string][]string{
			{"bearerAuth": {}},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]string{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
			"schemas": componentSchemas(),
		},
	}
}

func str() map[string]string {
	return map[string]string{"type": "string"}
}

func integer() map[string]string {
	return map[string]string{"type": "integer", "format": "int32"}
}

func object(required []string, props map[string]interface{}) map[string]interface{} {
	o := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		o["required"] = required
	}
	return o
}

func addressLines(minItems int) map[string]interface{} {
	return map[string]interface{}{
		"type":     "array",
		"items":    str(),
		"minItems": minItems,
	}
}

func componentSchemas() map[string]interface{} {
	name := object([]string{"first", "middle", "surname"}, map[string]interface{}{
		"first": str(), "middle": str(), "surname": str(),
	})
	address := object([]string{"address_lines", "country_region"}, map[string]interface{}{
		"address_lines":       addressLines(1),
		"sublocality":         str(),
		"locality":            str(),
		"administrative_area": str(),
		"postal_code":         str(),
		"country_region":      str(),
	})
	birthdate := object([]string{"day", "month", "year"}, map[string]interface{}{
		"day": integer(), "month": integer(), "year": integer(),
	})

	return map[string]interface{}{
		"Name":      name,
		"Address":   address,
		"Birthdate": birthdate,
		"Patient": object([]string{"patient_id", "created_at", "name", "address", "birthdate"}, map[string]interface{}{
			"patient_id": map[string]string{"type": "string", "format": "uuid"},
			"created_at": map[string]string{"type": "string", "format": "date-time"},
			"name":       ref("Name"),
			"address":    ref("Address"),
			"birthdate":  ref("Birthdate"),
		}),
		"CreatePatientRequest": object([]string{"name", "address", "birth_date"}, map[string]interface{}{
			"name": object([]string{"first", "surname"}, map[string]interface{}{
				"first": str(), "middle": str(), "surname": str(),
			}),
			"address":    address,
			"birth_date": birthdate,
		}),
		"UpdatePatientRequest": object(nil, map[string]interface{}{
			"name": object(nil, map[string]interface{}{"middle": str()}),
			"address": object(nil, map[string]interface{}{
				"address_lines":       addressLines(1),
				"sublocality":         str(),
				"locality":            str(),
				"administrative_area": str(),
				"postal_code":         str(),
				"country_region":      str(),
			}),
		}),
		"PatientResponse": object([]string{"data"}, map[string]interface{}{"data": ref("Patient")}),
		"PatientList": object([]string{"patients"}, map[string]interface{}{
			"patients": map[string]interface{}{"type": "array", "items": ref("Patient")},
		}),
		"LoginRequest":  object([]string{"username", "password"}, map[string]interface{}{"username": str(), "password": str()}),
		"LoginResponse": object([]string{"token"}, map[string]interface{}{"token": str()}),
		"ErrorResponse": object([]string{"status_code", "reason", "message"}, map[string]interface{}{
			"status_code": map[string]string{"type": "integer"},
			"reason":      str(),
			"message":     str(),
		}),
	}
}

// ── Swagger UI ──────────────────────────────────────────────────────────

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Patient Records API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "{{SPEC_URL}}",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`

// SwaggerUICSP lets the page load the Swagger UI bundle from unpkg.
const SwaggerUICSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://unpkg.com; " +
	"style-src 'self' 'unsafe-inline' https://unpkg.com; img-src 'self' data: https://unpkg.com; frame-ancestors 'none'"

// SwaggerUIPath and SpecPath are relative to the group passed to RegisterRoutes.
const (
	SpecPath      = "/openapi.json"
	SwaggerUIPath = "/swagger-ui"
)

// RegisterRoutes registers the document and the Swagger UI page on g.
func (g *Generator) RegisterRoutes(grp *echo.Group) {
	spec := g.GenerateSpec()
	page := renderSwaggerUI(g.basePath + SpecPath)

	grp.GET(SpecPath, func(c echo.Context) error {
		return c.JSON(http.StatusOK, spec)
	})
	grp.GET(SwaggerUIPath, func(c echo.Context) error {
		return c.HTML(http.StatusOK, page)
	})
}

// PagePolicies maps the HTML routes this generator serves to the
// Content-Security-Policy they need.
func (g *Generator) PagePolicies() map[string]string {
	return map[string]string{g.basePath + SwaggerUIPath: SwaggerUICSP}
}

func renderSwaggerUI(specURL string) string {
	return strings.Replace(swaggerUIHTML, "{{SPEC_URL}}", specURL, 1)
}
