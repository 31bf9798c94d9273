package domain

// Target identifies the warehouse table a run loads into.
type Target struct {
	Database string
	Schema   string
	Table    string
}

// LoadOptions are passed unchanged to the warehouse loader on every insert.
type LoadOptions struct {
	Username        string
	Warehouse       string
	SchemaEvolution bool
}
