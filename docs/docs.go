// Package docs holds the Swagger document served under /swagger. Keep it in
// step with the @Router annotations in internal/server.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/conversations": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Conversations of the caller, most recent activity first.",
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "List conversations",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Conversation"}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Finds or creates the caller's conversation with a doctor or patient.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Open a conversation",
                "parameters": [
                    {"description": "Counterpart", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.CreateConversationRequest"}}
                ],
                "responses": {
                    "200": {"description": "Existing conversation", "schema": {"$ref": "#/definitions/models.Conversation"}},
                    "201": {"description": "Created conversation", "schema": {"$ref": "#/definitions/models.Conversation"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns the conversation with its messages and marks it read for the caller.",
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Get a conversation",
                "parameters": [
                    {"type": "integer", "description": "Conversation ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Conversation"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/messages": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Used by clients to reconcile after a reconnect. Ordered by seq.",
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Fetch messages after a sequence number",
                "parameters": [
                    {"type": "integer", "description": "Conversation ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Return messages with seq greater than this", "name": "after_seq", "in": "query"},
                    {"type": "integer", "description": "Page size (default 50, max 200)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Message"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Send a message",
                "parameters": [
                    {"type": "integer", "description": "Conversation ID", "name": "id", "in": "path", "required": true},
                    {"description": "Message", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.SendMessageRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.Message"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/read": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["conversations"],
                "summary": "Mark a conversation read",
                "parameters": [
                    {"type": "integer", "description": "Conversation ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"conversation_id": {"type": "integer"}, "read_count": {"type": "integer"}}}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["auth"],
                "summary": "Revoke the current token",
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/feature-flags": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["meta"],
                "summary": "Feature flags",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"raw": {"type": "object", "additionalProperties": {"type": "string"}}, "evaluated": {"type": "object", "additionalProperties": {"type": "boolean"}}}}}
                }
            }
        },
        "/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.User"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Latest 50 notifications plus the unread count.",
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "List notifications",
                "parameters": [
                    {"type": "boolean", "description": "Only unread notifications", "name": "unread", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"notifications": {"type": "array", "items": {"$ref": "#/definitions/models.Notification"}}, "unread_count": {"type": "integer"}}}}
                }
            }
        },
        "/notifications/read-all": {
            "put": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Mark all notifications read",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"updated": {"type": "integer"}}}}
                }
            }
        },
        "/notifications/{id}/read": {
            "put": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Mark one notification read",
                "parameters": [
                    {"type": "integer", "description": "Notification ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Notification"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/reports/{id}/share": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Records the share, opens the report's conversation and notifies the doctor.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["reports"],
                "summary": "Share a report with a doctor",
                "parameters": [
                    {"type": "integer", "description": "Report ID", "name": "id", "in": "path", "required": true},
                    {"description": "Doctor", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.ShareReportRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"conversation_id": {"type": "integer"}}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/ws/ticket": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Returns a ticket valid for 30 seconds; pass it as ?ticket= on /api/ws/chat.",
                "produces": ["application/json"],
                "tags": ["realtime"],
                "summary": "Issue a WebSocket ticket",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"ticket": {"type": "string"}, "expires_in": {"type": "integer"}}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/ws/chat": {
            "get": {
                "description": "Authenticate with Authorization: Bearer, ?token= or a single-use ?ticket=.",
                "tags": ["realtime"],
                "summary": "Realtime chat socket",
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "426": {"description": "Upgrade Required", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"},
                "details": {"type": "string"}
            }
        },
        "models.User": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "email": {"type": "string"},
                "role": {"type": "string", "enum": ["patient", "doctor"]},
                "first_name": {"type": "string"},
                "last_name": {"type": "string"},
                "specialization": {"type": "string"},
                "profile_picture": {"type": "string"}
            }
        },
        "models.Message": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "public_id": {"type": "string"},
                "conversation_id": {"type": "integer"},
                "seq": {"type": "integer"},
                "sender_id": {"type": "integer"},
                "sender_role": {"type": "string"},
                "text": {"type": "string"},
                "is_read": {"type": "boolean"},
                "read_at": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "models.Conversation": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "doctor_id": {"type": "integer"},
                "patient_id": {"type": "integer"},
                "report_id": {"type": "integer"},
                "last_message": {"type": "string"},
                "last_message_at": {"type": "string"},
                "doctor_unread_count": {"type": "integer"},
                "patient_unread_count": {"type": "integer"},
                "message_count": {"type": "integer"},
                "doctor": {"$ref": "#/definitions/models.User"},
                "patient": {"$ref": "#/definitions/models.User"},
                "messages": {"type": "array", "items": {"$ref": "#/definitions/models.Message"}}
            }
        },
        "models.Notification": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "user_id": {"type": "integer"},
                "type": {"type": "string", "enum": ["report_shared", "message_received", "chat_started"]},
                "title": {"type": "string"},
                "message": {"type": "string"},
                "related_id": {"type": "integer"},
                "related_model": {"type": "string"},
                "is_read": {"type": "boolean"},
                "created_at": {"type": "string"}
            }
        },
        "server.CreateConversationRequest": {
            "type": "object",
            "properties": {
                "doctor_id": {"type": "integer"},
                "patient_id": {"type": "integer"},
                "report_id": {"type": "integer"}
            }
        },
        "server.SendMessageRequest": {
            "type": "object",
            "properties": {
                "text": {"type": "string"}
            }
        },
        "server.ShareReportRequest": {
            "type": "object",
            "properties": {
                "doctor_id": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "DermAI Realtime Chat API",
	Description:      "Doctor/patient conversations, notifications and report sharing.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
