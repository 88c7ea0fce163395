package config

// EnvPrefix prefixes every environment variable the attestor reads.
const EnvPrefix = "ATTESTOR_"

// Validation constants
const (
	// NativeTokenDecimals is the number of decimals of the ledger's native token
	NativeTokenDecimals = 18
	// apdPrecision is enough digits for any uint256 wei amount
	apdPrecision        = 78
)

// Configuration field names
const (
	FieldVerifierURL      = "verifier_url"
	FieldDALayerURL       = "dalayer_url"
	FieldLedgerRPCURL     = "ledger_rpc_url"
	FieldPrivateKey       = "ledger_private_key"
	FieldRequestFee       = "ledger_request_fee"
	FieldContractAddress  = "ledger_contract_address"
	FieldProtocolParams   = "ledger_protocol_params"
	FieldAttestationKind  = "attestation_kind"
	FieldSourceID         = "source_id"
	FieldLogFormat        = "log_format"
	FieldConcurrency      = "engine_concurrency"
	FieldMaxCheckInterval = "engine_max_check_interval"
)

// Error messages
const (
	ErrMsgInvalidAddress  = "invalid ethereum address format"
	ErrMsgInvalidURL      = "must be an absolute http(s) or ws(s) URL"
	ErrMsgEmptyRequired   = "required field cannot be empty"
	ErrMsgInvalidFee      = "must be a non-negative decimal with at most 18 fractional digits"
	ErrMsgTooLong         = "must be at most 32 bytes"
	ErrMsgPartialSchedule = "first voting round start and epoch duration must be set together"
)
