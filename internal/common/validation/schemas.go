package validation

var AutomationRule = MustCompile("automation-rule", `{
	"type": "object",
	"required": ["name", "type", "conditions", "action"],
	"properties": {
		"name": {"type": "string", "minLength": 1, "maxLength": 200},
		"enabled": {"type": "boolean"},
		"type": {"enum": ["auto-approve", "auto-reject", "status-transition", "ticket-routing"]},
		"conditions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["field", "operator", "value"],
				"properties": {
					"field": {"type": "string", "minLength": 1},
					"operator": {"enum": ["=", "!=", ">", ">=", "<", "<=", "contains"]},
					"value": {"type": ["string", "number", "boolean"]}
				},
				"additionalProperties": false
			}
		},
		"action": {
			"type": "object",
			"required": ["kind"],
			"properties": {
				"kind": {"enum": ["auto-approve", "auto-reject", "status-transition", "ticket-routing"]},
				"targetStatus": {"type": "string"},
				"queue": {"type": "string"}
			},
			"additionalProperties": false
		}
	}
}`)

var PaymentEvent = MustCompile("payment-event", `{
	"type": "object",
	"required": ["applicationId", "outcome"],
	"properties": {
		"applicationId": {"type": "integer", "minimum": 1},
		"outcome": {"enum": ["fee_paid", "fee_failed"]},
		"reference": {"type": "string"},
		"reason": {"type": "string"}
	}
}`)
