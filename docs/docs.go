// Package docs holds the Swagger description of the session API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/sessions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "List sessions",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "post": {
                "description": "Starts a headless monitor session that ticks on the server frame clock",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Create a session",
                "parameters": [
                    {
                        "description": "Session parameters",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/session.CreateSessionRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/session.SessionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "429": {"description": "Too Many Requests", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/sessions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Get a session",
                "parameters": [{"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/session.SessionResponse"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Destroy a session",
                "parameters": [{"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/sessions/{id}/category": {
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Change the category",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true},
                    {
                        "description": "New category",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/session.SetCategoryRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/session.SessionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/sessions/{id}/frame.png": {
            "get": {
                "produces": ["image/png"],
                "tags": ["Sessions"],
                "summary": "Current frame",
                "parameters": [{"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/sessions/{id}/trace": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Trace samples",
                "parameters": [{"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/session.TraceResponse"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/sessions/{id}/audio.wav": {
            "get": {
                "produces": ["audio/wav"],
                "tags": ["Sessions"],
                "summary": "Monitor tone",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "default": 5, "description": "Clip length in seconds", "name": "seconds", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/categories": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Content"],
                "summary": "Categories",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/api/schedule": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Content"],
                "summary": "Day schedule",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "session.CreateSessionRequest": {
            "type": "object",
            "properties": {
                "capacity": {"type": "integer"},
                "category": {"type": "string", "example": "resting"},
                "height": {"type": "integer"},
                "hide_labels": {"type": "boolean"},
                "step": {"type": "number"},
                "time_label": {"type": "string", "example": "02:00"}
            }
        },
        "session.SetCategoryRequest": {
            "type": "object",
            "properties": {
                "category": {"type": "string", "example": "anomalous"},
                "time_label": {"type": "string"}
            }
        },
        "session.Descriptor": {
            "type": "object",
            "properties": {
                "capacity": {"type": "integer"},
                "category": {"type": "string"},
                "created_at": {"type": "string"},
                "height": {"type": "integer"},
                "id": {"type": "string"},
                "label": {"type": "string"},
                "rate_label": {"type": "string"},
                "status": {"type": "string"},
                "step_size": {"type": "number"},
                "time_label": {"type": "string"},
                "updated_at": {"type": "string"},
                "width": {"type": "integer"}
            }
        },
        "session.SessionResponse": {
            "type": "object",
            "properties": {
                "bpm": {"type": "number"},
                "session": {"$ref": "#/definitions/session.Descriptor"}
            }
        },
        "session.TraceResponse": {
            "type": "object",
            "properties": {
                "bpm": {"type": "number"},
                "category": {"type": "string"},
                "id": {"type": "string"},
                "pattern": {"type": "string"},
                "phase": {"type": "number"},
                "running": {"type": "boolean"},
                "samples": {"type": "array", "items": {"type": "number"}},
                "step_size": {"type": "number"},
                "tick": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Heart Rhythm Day API",
	Description:      "Live cardiac monitor sessions: trace frames, samples, tone and the day schedule.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
