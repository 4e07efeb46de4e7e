// Package docs holds the OpenAPI document served under /swagger. It follows
// the godoc annotations on the handlers; router_test.go checks that every
// route is described.
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
        "/api/v1/blobs/{ref}": {
            "put": {
                "security": [{"Bearer": []}],
                "description": "Store the body under a reference returned to the caller by the upload-url endpoint. A reference can be written once, before it expires.",
                "consumes": ["application/octet-stream"],
                "tags": ["blobs"],
                "summary": "Upload file bytes",
                "parameters": [
                    {"type": "string", "description": "Blob reference", "name": "ref", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/v1/documents": {
            "get": {
                "security": [{"Bearer": []}],
                "description": "Get the caller's documents, newest first",
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "List user's documents",
                "parameters": [
                    {"type": "integer", "default": 10, "description": "Limit", "name": "limit", "in": "query"},
                    {"type": "integer", "default": 0, "description": "Offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.DocumentListResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "post": {
                "security": [{"Bearer": []}],
                "description": "Create a pending document for a file uploaded through an upload URL",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Register an uploaded statement",
                "parameters": [
                    {"description": "Document", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.CreateDocumentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.DocumentResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/v1/documents/upload": {
            "post": {
                "security": [{"Bearer": []}],
                "description": "Upload a statement file (PDF, TXT or CSV) and create a pending document",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Upload a statement",
                "parameters": [
                    {"type": "file", "description": "Statement file", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "Document title, defaults to the file name", "name": "title", "in": "formData"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.DocumentResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/v1/documents/upload-url": {
            "post": {
                "security": [{"Bearer": []}],
                "description": "Reserve a blob reference and get the URL the statement file must be sent to",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Request an upload URL",
                "parameters": [
                    {"description": "File to upload", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.RequestUploadRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.UploadURLResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/v1/documents/{id}": {
            "get": {
                "security": [{"Bearer": []}],
                "description": "Get a document with its analysis and recorded failures",
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Get a document",
                "parameters": [
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.DocumentDetailResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "delete": {
                "security": [{"Bearer": []}],
                "description": "Delete a document that is not being processed, with its analysis and file",
                "tags": ["documents"],
                "summary": "Delete a document",
                "parameters": [
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/v1/documents/{id}/export": {
            "get": {
                "security": [{"Bearer": []}],
                "description": "Download a completed analysis as an XLSX workbook",
                "produces": ["application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "tags": ["documents"],
                "summary": "Export an analysis",
                "parameters": [
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/v1/documents/{id}/process": {
            "post": {
                "security": [{"Bearer": []}],
                "description": "Start extraction and analysis of a pending document. Poll the document for the outcome.",
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Process a document",
                "parameters": [
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/dto.DocumentResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "dto.AnalysisResponse": {
            "type": "object",
            "properties": {
                "advice": {"type": "string"},
                "averageDailySpent": {"type": "number"},
                "category": {"type": "string"},
                "dayCount": {"type": "integer"},
                "id": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/dto.TransactionResponse"}},
                "modelId": {"type": "string"},
                "period": {"type": "string"},
                "processedAt": {"type": "string"},
                "summary": {"type": "string"},
                "tokenUsage": {"type": "integer"},
                "totalAmount": {"type": "number"}
            }
        },
        "dto.CreateDocumentRequest": {
            "type": "object",
            "required": ["blobRef", "title"],
            "properties": {
                "blobRef": {"type": "string"},
                "title": {"type": "string"}
            }
        },
        "dto.DocumentDetailResponse": {
            "type": "object",
            "properties": {
                "analysis": {"$ref": "#/definitions/dto.AnalysisResponse"},
                "document": {"$ref": "#/definitions/dto.DocumentResponse"},
                "errors": {"type": "array", "items": {"$ref": "#/definitions/dto.ExecutionErrorResponse"}}
            }
        },
        "dto.DocumentListResponse": {
            "type": "object",
            "properties": {
                "documents": {"type": "array", "items": {"$ref": "#/definitions/dto.DocumentResponse"}},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"}
            }
        },
        "dto.DocumentResponse": {
            "type": "object",
            "properties": {
                "blobRef": {"type": "string"},
                "createdAt": {"type": "string"},
                "id": {"type": "string"},
                "status": {"type": "string"},
                "title": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "dto.ExecutionErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "step": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "dto.RequestUploadRequest": {
            "type": "object",
            "required": ["fileName"],
            "properties": {
                "fileName": {"type": "string"}
            }
        },
        "dto.TransactionResponse": {
            "type": "object",
            "properties": {
                "amount": {"type": "number"},
                "category": {"type": "string"},
                "date": {"type": "string"},
                "merchant": {"type": "string"}
            }
        },
        "dto.UploadURLResponse": {
            "type": "object",
            "properties": {
                "blobRef": {"type": "string"},
                "expiresAt": {"type": "string"},
                "headers": {"type": "object", "additionalProperties": {"type": "string"}},
                "method": {"type": "string"},
                "uploadUrl": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "Bearer": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Fin Analyzer API",
	Description:      "Financial statement analysis: upload a statement, run extraction and analysis, read the structured result.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
