package domain

import "time"

// Stage is a step of one pipeline run.
type Stage string

const (
	StageValidating      Stage = "VALIDATING"
	StageFetchingAccount Stage = "FETCHING_ACCOUNT"
	StageBuilding        Stage = "BUILDING"
	StageSigning         Stage = "SIGNING"
	StageSubmitting      Stage = "SUBMITTING"
	StageSucceeded       Stage = "SUCCEEDED"
	StageFailed          Stage = "FAILED"
)

var stageProgress = map[Stage]int{
	StageValidating:      10,
	StageFetchingAccount: 30,
	StageBuilding:        50,
	StageSigning:         70,
	StageSubmitting:      90,
	StageSucceeded:       100,
	StageFailed:          100,
}

// Progress is the advisory completion percentage shown while in the stage.
func (s Stage) Progress() int {
	return stageProgress[s]
}

// Irrevocable reports whether a run in this stage may already be on the ledger.
func (s Stage) Irrevocable() bool {
	return s == StageSigning || s == StageSubmitting
}

// Flow names the user-facing operation a run executes.
type Flow string

const (
	FlowPay         Flow = "pay"
	FlowSwap        Flow = "swap"
	FlowChangeTrust Flow = "change_trust"
	FlowBridge      Flow = "bridge"
)

// Quote is the ledger's best strict-send conversion for a fixed source amount.
type Quote struct {
	SourceAsset       Asset   `json:"sourceAsset"`
	SourceAmount      string  `json:"sourceAmount"`
	DestinationAsset  Asset   `json:"destinationAsset"`
	DestinationAmount string  `json:"destinationAmount"`
	Rate              string  `json:"rate"`
	Path              []Asset `json:"path"`
}

// SwapDetails echoes a swap for display.
type SwapDetails struct {
	SendAmount string  `json:"sendAmount"`
	DestAsset  Asset   `json:"destAsset"`
	DestMin    string  `json:"destMin"`
	Expected   string  `json:"expected,omitempty"`
	Rate       string  `json:"rate,omitempty"`
	Path       []Asset `json:"path,omitempty"`
}

// BridgeDetails echoes a bridge lock for display.
type BridgeDetails struct {
	FromToken        string `json:"fromToken"`
	DestToken        string `json:"destToken"`
	Amount           string `json:"amount"`
	AmountStroops    int64  `json:"amountStroops"`
	DestChain        string `json:"destChain"`
	DestChainName    string `json:"destChainName,omitempty"`
	RecipientAddress string `json:"recipientAddress"`
	EstimatedFee     string `json:"estimatedFee,omitempty"`
}

// ContractDetails identifies the contract call a bridge lock made.
type ContractDetails struct {
	ContractID string `json:"contractId"`
	Function   string `json:"function"`
}

// RunError is the structured failure of a run. Message is user-facing;
// ResultCodes and ResultXDR always carry the ledger's raw result when there was one.
type RunError struct {
	Kind        ErrorKind   `json:"kind"`
	Message     string      `json:"message"`
	Detail      string      `json:"detail,omitempty"`
	ResultCodes ResultCodes `json:"resultCodes"`
	ResultXDR   string      `json:"resultXdr,omitempty"`
}

// RunResult is the terminal record of one pipeline run. It is produced once and never retried.
type RunResult struct {
	ID              string           `json:"id"`
	Flow            Flow             `json:"flow"`
	Network         Network          `json:"network"`
	Account         string           `json:"account"`
	Success         bool             `json:"success"`
	Stage           Stage            `json:"stage"`
	FailedAt        Stage            `json:"failedAt,omitempty"`
	Hash            string           `json:"hash,omitempty"`
	Ledger          int32            `json:"ledger,omitempty"`
	ExplorerURL     string           `json:"explorerUrl,omitempty"`
	Message         string           `json:"message,omitempty"`
	AlreadyTrusted  bool             `json:"alreadyTrusted,omitempty"`
	EnvelopeXDR     string           `json:"envelopeXdr,omitempty"`
	SwapDetails     *SwapDetails     `json:"swapDetails,omitempty"`
	BridgeDetails   *BridgeDetails   `json:"bridgeDetails,omitempty"`
	ContractDetails *ContractDetails `json:"contractDetails,omitempty"`
	Error           *RunError        `json:"error,omitempty"`
	StartedAt       time.Time        `json:"startedAt"`
	FinishedAt      time.Time        `json:"finishedAt"`
}

// Progress is one stage transition reported to the caller.
type Progress struct {
	RunID   string `json:"runId"`
	Flow    Flow   `json:"flow"`
	Account string `json:"account"`
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
}
