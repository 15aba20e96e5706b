package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "CyberGuard API",
        "description": "Cyberbullying incident reporting, critical area analysis and escalation to cybercrime authorities.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Accounts and token sessions"},
        {"name": "Reports", "description": "Incident submission and triage"},
        {"name": "Critical Areas", "description": "Location clusters, escalation and exports"}
    ],
    "paths": {
        "/auth/signup": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a USER account",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/SignupRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email taken", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate with email and password",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}],
                "responses": {
                    "200": {"description": "Tokens issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate a refresh token",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/RefreshRequest"}}],
                "responses": {
                    "200": {"description": "Tokens issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Expired or revoked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke a refresh token",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/RefreshRequest"}}],
                "responses": {"204": {"description": "Logged out"}}
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/reports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Submit a report",
                "description": "Unauthenticated callers may only submit with isAnonymous=true.",
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CreateReportRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Reports"],
                "summary": "List reports",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "query", "name": "status", "type": "string", "enum": ["pending", "reported", "resolved"]},
                    {"in": "query", "name": "severity", "type": "string", "enum": ["low", "medium", "high", "critical"]},
                    {"in": "query", "name": "type", "type": "string"},
                    {"in": "query", "name": "city", "type": "string"},
                    {"in": "query", "name": "state", "type": "string"},
                    {"in": "query", "name": "page", "type": "integer"},
                    {"in": "query", "name": "page_size", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/reports/stats": {
            "get": {
                "tags": ["Reports"],
                "summary": "Report statistics (officer, admin)",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/reports/map": {
            "get": {
                "tags": ["Reports"],
                "summary": "Map markers for reports with valid coordinates",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK; meta.skipped counts unplottable reports", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/reports/{id}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Get a report",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reports/{id}/status": {
            "patch": {
                "tags": ["Reports"],
                "summary": "Advance report status (officer, admin)",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/UpdateStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "INVALID_STATUS_TRANSITION", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/critical-areas": {
            "get": {
                "tags": ["Critical Areas"],
                "summary": "Location clusters of three or more reports",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "query", "name": "mode", "type": "string", "enum": ["city_state", "city_type"]}],
                "responses": {"200": {"description": "OK; meta.cache_hit reports cache use", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/critical-areas/escalate": {
            "post": {
                "tags": ["Critical Areas"],
                "summary": "Escalate to cybercrime authorities (officer, admin)",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/EscalateRequest"}}],
                "responses": {
                    "200": {"description": "Escalation result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Area or reports not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/critical-areas/export": {
            "get": {
                "tags": ["Critical Areas"],
                "summary": "Export critical areas (officer, admin)",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "parameters": [
                    {"in": "query", "name": "mode", "type": "string", "enum": ["city_state", "city_type"]},
                    {"in": "query", "name": "format", "type": "string", "enum": ["csv", "pdf", "xlsx"]}
                ],
                "responses": {"200": {"description": "Document", "schema": {"type": "file"}}}
            }
        }
    },
    "definitions": {
        "SignupRequest": {
            "type": "object",
            "required": ["email", "password", "full_name"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string", "minLength": 8},
                "full_name": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {"email": {"type": "string"}, "password": {"type": "string"}}
        },
        "RefreshRequest": {
            "type": "object",
            "required": ["refresh_token"],
            "properties": {"refresh_token": {"type": "string"}}
        },
        "Location": {
            "type": "object",
            "required": ["city", "state"],
            "properties": {
                "lat": {"type": "number"},
                "lng": {"type": "number"},
                "address": {"type": "string"},
                "state": {"type": "string"},
                "district": {"type": "string"},
                "city": {"type": "string"}
            }
        },
        "CreateReportRequest": {
            "type": "object",
            "required": ["location", "bullyingType"],
            "properties": {
                "name": {"type": "string"},
                "age": {"type": "integer"},
                "location": {"$ref": "#/definitions/Location"},
                "bullyingType": {"type": "string"},
                "perpetratorInfo": {"type": "object"},
                "evidenceLinks": {"type": "array", "items": {"type": "string"}},
                "description": {"type": "string"},
                "severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
                "isAnonymous": {"type": "boolean"}
            }
        },
        "UpdateStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {"status": {"type": "string", "enum": ["pending", "reported", "resolved"]}}
        },
        "EscalateRequest": {
            "type": "object",
            "properties": {
                "mode": {"type": "string", "enum": ["city_state", "city_type"]},
                "locationKey": {"type": "string"},
                "reportIds": {"type": "array", "items": {"type": "string"}},
                "location": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
