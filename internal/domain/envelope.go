package domain

// Envelope is a built, unsigned transaction ready for the signer. It is
// single-use: SequenceNumber is consumed by the first accepted submission.
type Envelope struct {
	Kind           IntentKind `json:"kind"`
	Network        Network    `json:"network"`
	SourceAccount  string     `json:"sourceAccount"`
	SequenceNumber int64      `json:"sequenceNumber"`
	OperationCount int        `json:"operationCount"`
	Fee            int64      `json:"fee"`
	// TimeoutSeconds is zero for an unbounded envelope.
	TimeoutSeconds int64  `json:"timeoutSeconds"`
	MaxTime        int64  `json:"maxTime"`
	XDR            string `json:"xdr"`
	Hash           string `json:"hash"`
}

// Submission is the ledger's acceptance of a signed envelope.
type Submission struct {
	Hash       string `json:"hash"`
	Ledger     int32  `json:"ledger"`
	Successful bool   `json:"successful"`
}
