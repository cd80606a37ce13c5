package api

const createOrgSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["org_id", "admins"],
  "properties": {
    "org_id": {"type": "string", "minLength": 1, "maxLength": 64},
    "admins": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1, "maxLength": 128}
    }
  }
}`

const depositSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["amount"],
  "properties": {
    "amount": {"type": "integer", "exclusiveMinimum": 0}
  }
}`

const payEmployeeSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["admin", "employee", "amount"],
  "properties": {
    "admin": {"type": "string", "minLength": 1},
    "employee": {"type": "string", "minLength": 1},
    "amount": {"type": "integer", "exclusiveMinimum": 0}
  }
}`

const adminWithdrawSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["admin", "to", "amount"],
  "properties": {
    "admin": {"type": "string", "minLength": 1},
    "to": {"type": "string", "minLength": 1},
    "amount": {"type": "integer", "exclusiveMinimum": 0}
  }
}`

const createContractSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["admin", "employee_id", "payee", "rate", "frequency"],
  "properties": {
    "admin": {"type": "string", "minLength": 1},
    "employee_id": {"type": "string", "minLength": 1, "maxLength": 64},
    "payee": {"type": "string", "minLength": 1},
    "rate": {"type": "integer", "exclusiveMinimum": 0},
    "frequency": {"type": "string", "enum": ["WEEKLY", "MONTHLY"]}
  }
}`

const setContractActiveSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["admin", "active"],
  "properties": {
    "admin": {"type": "string", "minLength": 1},
    "active": {"type": "boolean"}
  }
}`

const createAllocationSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["owner"],
  "properties": {
    "owner": {"type": "string", "minLength": 1, "maxLength": 128}
  }
}`

const withdrawSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["destination", "amount"],
  "properties": {
    "destination": {"type": "string", "minLength": 1},
    "amount": {"type": "integer", "exclusiveMinimum": 0}
  }
}`

const rebalanceSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["vault_percent"],
  "properties": {
    "vault_percent": {"type": "integer", "minimum": 0, "maximum": 100},
    "withdraw_amount": {"type": "integer", "minimum": 0},
    "deposit_amount": {"type": "integer", "minimum": 0}
  }
}`
