package context

type Key string

const (
	Claims    Key = "claims"
	Principal Key = "principal"
	Params    Key = "params"
)
