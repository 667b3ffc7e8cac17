package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Cadenza Lesson API",
        "description": "Recurring music-lesson scheduling: agreements, deviations and effective schedules",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and profile"},
        {"name": "Agreements", "description": "Recurring lesson agreements"},
        {"name": "Deviations", "description": "Per-week schedule exceptions"},
        {"name": "Schedule", "description": "Effective calendar views and exports"},
        {"name": "Availability", "description": "Candidate slot checks"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Token issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "responses": {
                    "200": {"description": "Profile", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/agreements": {
            "get": {
                "tags": ["Agreements"],
                "summary": "List agreements",
                "parameters": [
                    {"name": "teacherId", "in": "query", "type": "string"},
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Agreements", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Agreements"],
                "summary": "Create agreement",
                "description": "The teacher's slot is checked first; set force to provision into an occupied slot.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAgreementRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot fully occupied"}
                }
            }
        },
        "/agreements/{id}": {
            "get": {
                "tags": ["Agreements"],
                "summary": "Get agreement",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Agreement", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Agreements"],
                "summary": "Update agreement",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateAgreementRequest"}}
                ],
                "responses": {
                    "200": {"description": "Updated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Agreements"],
                "summary": "Archive agreement",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Archived"}
                }
            }
        },
        "/agreements/{id}/deviations": {
            "post": {
                "tags": ["Deviations"],
                "summary": "Create deviation",
                "description": "Move or cancel one occurrence, or a forward-looking span when recurring is set.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateDeviationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "A deviation already exists for this occurrence"},
                    "422": {"description": "Date is not an occurrence, or the row does not deviate"}
                }
            }
        },
        "/agreements/{id}/restore": {
            "post": {
                "tags": ["Deviations"],
                "summary": "Restore a week to the original slot",
                "description": "Scope only_this reverts one week; this_and_future reverts the whole forward coverage.",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RestoreWeekRequest"}}
                ],
                "responses": {
                    "200": {"description": "Outcome tag", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Date is not an occurrence"}
                }
            }
        },
        "/agreements/{id}/schedule": {
            "get": {
                "tags": ["Schedule"],
                "summary": "Effective schedule for an agreement",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "Occurrences", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/deviations/{id}": {
            "delete": {
                "tags": ["Deviations"],
                "summary": "Delete deviation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/deviations/{id}/shift": {
            "post": {
                "tags": ["Deviations"],
                "summary": "Shift recurring deviation one week forward",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Replacement row", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/deviations/{id}/end": {
            "post": {
                "tags": ["Deviations"],
                "summary": "End recurring deviation from a week",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EndDeviationRequest"}}
                ],
                "responses": {
                    "200": {"description": "Outcome tag", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}/schedule": {
            "get": {
                "tags": ["Schedule"],
                "summary": "Effective schedule for a teacher",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "Occurrences", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teachers/{id}/schedule/export": {
            "get": {
                "tags": ["Schedule"],
                "summary": "Export a teacher's schedule",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "required": true, "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "from", "in": "query", "type": "string", "format": "date"},
                    {"name": "to", "in": "query", "type": "string", "format": "date"}
                ],
                "responses": {
                    "200": {"description": "Rendered document"}
                }
            }
        },
        "/teachers/{id}/availability": {
            "post": {
                "tags": ["Availability"],
                "summary": "Check slot availability",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CandidateSlot"}}
                ],
                "responses": {
                    "200": {"description": "Availability report", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateAgreementRequest": {
            "type": "object",
            "required": ["teacher_id", "student_id", "lesson_type_id", "start_time", "duration_minutes", "frequency", "start_date"],
            "properties": {
                "teacher_id": {"type": "string"},
                "student_id": {"type": "string"},
                "lesson_type_id": {"type": "string"},
                "day_of_week": {"type": "integer", "minimum": 0, "maximum": 6},
                "start_time": {"type": "string", "example": "14:30"},
                "duration_minutes": {"type": "integer"},
                "frequency": {"type": "string", "enum": ["DAILY", "WEEKLY", "BIWEEKLY", "MONTHLY"]},
                "start_date": {"type": "string", "format": "date-time"},
                "end_date": {"type": "string", "format": "date-time"},
                "force": {"type": "boolean"}
            }
        },
        "UpdateAgreementRequest": {
            "type": "object",
            "properties": {
                "day_of_week": {"type": "integer"},
                "start_time": {"type": "string"},
                "duration_minutes": {"type": "integer"},
                "frequency": {"type": "string"},
                "end_date": {"type": "string", "format": "date-time"}
            }
        },
        "CreateDeviationRequest": {
            "type": "object",
            "required": ["original_date"],
            "properties": {
                "original_date": {"type": "string", "format": "date"},
                "actual_date": {"type": "string", "format": "date"},
                "actual_start_time": {"type": "string", "example": "16:00"},
                "cancelled": {"type": "boolean"},
                "recurring": {"type": "boolean"},
                "recurring_end_date": {"type": "string", "format": "date"}
            }
        },
        "RestoreWeekRequest": {
            "type": "object",
            "required": ["week_date", "scope"],
            "properties": {
                "week_date": {"type": "string", "format": "date"},
                "scope": {"type": "string", "enum": ["only_this", "this_and_future"]}
            }
        },
        "EndDeviationRequest": {
            "type": "object",
            "required": ["week_date"],
            "properties": {
                "week_date": {"type": "string", "format": "date"}
            }
        },
        "CandidateSlot": {
            "type": "object",
            "required": ["start_time", "duration_minutes", "frequency", "start_date"],
            "properties": {
                "day_of_week": {"type": "integer"},
                "start_time": {"type": "string"},
                "duration_minutes": {"type": "integer"},
                "frequency": {"type": "string"},
                "start_date": {"type": "string", "format": "date"},
                "end_date": {"type": "string", "format": "date"}
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
                "status": {"type": "integer"}
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
