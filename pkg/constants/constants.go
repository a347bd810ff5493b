package constants

import "github.com/go-playground/validator/v10"

type ContextKey string

const (
	TxKey     ContextKey = "tx"
	PoolKey   ContextKey = "pool"
	LoggerKey ContextKey = "logger"
	ParamsKey ContextKey = "params"
	ActorKey  ContextKey = "actor"
)

// AdminDirectRequestID marks audit entries written by an elevated actor without a grant.
const AdminDirectRequestID = "admin_direct"

// AdminDirectReason is the attribution reason paired with AdminDirectRequestID.
const AdminDirectReason = "Direct Edit"

var Validate = validator.New(validator.WithRequiredStructEnabled())
