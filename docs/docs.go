// Package docs serves the OpenAPI document behind /swagger/doc.json.
// The document is maintained by hand alongside the handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/games/roulette/bet": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Games"],
                "summary": "Play Roulette",
                "description": "Place a roulette bet, spin the wheel, and settle the outcome atomically",
                "parameters": [{
                    "name": "request",
                    "in": "body",
                    "required": true,
                    "schema": {
                        "type": "object",
                        "properties": {
                            "amount": {"type": "integer"},
                            "betType": {"type": "string"},
                            "betValue": {}
                        }
                    }
                }],
                "responses": {
                    "200": {"description": "Settled round"},
                    "400": {"description": "Invalid bet or insufficient funds"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/games/blackjack/start": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Games"],
                "summary": "Start Blackjack",
                "description": "Start a blackjack game, debiting the bet; a natural blackjack settles immediately",
                "parameters": [{
                    "name": "request",
                    "in": "body",
                    "required": true,
                    "schema": {
                        "type": "object",
                        "properties": {"amount": {"type": "integer"}}
                    }
                }],
                "responses": {
                    "200": {"description": "Game state"},
                    "400": {"description": "Invalid bet or insufficient funds"},
                    "409": {"description": "A game is already in progress"}
                }
            }
        },
        "/games/blackjack/action": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Games"],
                "summary": "Blackjack Action",
                "description": "Apply hit, stand, double, or split to the caller's active blackjack game",
                "parameters": [{
                    "name": "request",
                    "in": "body",
                    "required": true,
                    "schema": {
                        "type": "object",
                        "properties": {
                            "gameId": {"type": "string"},
                            "action": {"type": "string"},
                            "handIndex": {"type": "integer"}
                        }
                    }
                }],
                "responses": {
                    "200": {"description": "Game state"},
                    "400": {"description": "Illegal action"},
                    "404": {"description": "Game not found"},
                    "409": {"description": "Game already completed or state changed"}
                }
            }
        },
        "/games/cases": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Games"],
                "summary": "List Cases",
                "description": "List the openable case types with prices and item tables",
                "responses": {
                    "200": {"description": "Case catalog"}
                }
            }
        },
        "/games/cases/open": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Games"],
                "summary": "Open Case",
                "description": "Open a case for its price, pay for a previewed draw up front, or settle a previously paid preview",
                "parameters": [{
                    "name": "request",
                    "in": "body",
                    "required": true,
                    "schema": {
                        "type": "object",
                        "properties": {
                            "caseTypeId": {"type": "string"},
                            "previewOnly": {"type": "boolean"},
                            "requestId": {"type": "string"},
                            "predeterminedWinner": {"type": "object"}
                        }
                    }
                }],
                "responses": {
                    "200": {"description": "Opening result"},
                    "400": {"description": "Invalid payload or insufficient funds"},
                    "429": {"description": "Duplicate request still in progress"}
                }
            }
        },
        "/user/daily-bonus": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["User"],
                "summary": "Claim Daily Bonus",
                "description": "Credit the daily bonus once per cooldown window",
                "responses": {
                    "200": {"description": "Bonus credited"},
                    "400": {"description": "Bonus already claimed"}
                }
            }
        },
        "/user/balance": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["User"],
                "summary": "Get Balance",
                "description": "Return the caller's current balance",
                "responses": {
                    "200": {"description": "Balance"}
                }
            }
        },
        "/user/transactions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["User"],
                "summary": "Get Transactions",
                "description": "Return the caller's most recent transactions, newest first",
                "parameters": [{
                    "name": "limit",
                    "in": "query",
                    "type": "integer"
                }],
                "responses": {
                    "200": {"description": "Transaction list"},
                    "400": {"description": "Invalid limit"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Game Transaction Engine API",
	Description:      "API for virtual-currency casino games with atomic settlement",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
