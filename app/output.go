package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	markdown "github.com/fbiville/markdown-table-formatter/pkg/markdown"
	"github.com/samber/lo"

	"github.com/trufnetwork/fdc-attestor/workflow"
)

const (
	outputJSON  = "json"
	outputTable = "table"
)

// outcomeView is the printed form of one workflow outcome.
type outcomeView struct {
	Index           int      `json:"index"`
	URL             string   `json:"url"`
	State           string   `json:"state"`
	RunID           string   `json:"run_id,omitempty"`
	RoundID         *uint64  `json:"round_id,omitempty"`
	ExplorerRef     string   `json:"explorer_ref,omitempty"`
	TxHash          string   `json:"tx_hash,omitempty"`
	EncodedRequest  string   `json:"encoded_request,omitempty"`
	Response        string   `json:"response_hex,omitempty"`
	AttestationKind string   `json:"attestation_type,omitempty"`
	Proof           []string `json:"proof,omitempty"`
	ErrorType       string   `json:"error_type,omitempty"`
	Error           string   `json:"error,omitempty"`
	DurationMs      int64    `json:"duration_ms"`
}

func newOutcomeView(params workflow.RequestParams, o workflow.Outcome) outcomeView {
	v := outcomeView{
		Index:      o.Index,
		URL:        params.EndpointURL(),
		DurationMs: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		v.State = string(workflow.StateFailed)
		v.ErrorType = string(workflow.KindOf(o.Err))
		v.Error = o.Err.Error()

		// Failures after submission still tell the caller where the
		// request landed.
		var wfErr *workflow.WorkflowError
		if errors.As(o.Err, &wfErr) {
			v.RunID = wfErr.RunID
			if wfErr.Prepared != nil {
				v.EncodedRequest = hexutil.Encode(wfErr.Prepared.EncodedRequest)
			}
			if wfErr.TxHash != nil {
				v.TxHash = wfErr.TxHash.Hex()
			}
			if wfErr.Round != nil {
				v.RoundID = lo.ToPtr(wfErr.Round.RoundID)
				v.ExplorerRef = wfErr.Round.ExplorerRef
			}
		}
		return v
	}

	res := o.Result
	v.State = string(workflow.StateComplete)
	v.RunID = res.RunID
	v.RoundID = lo.ToPtr(res.Round.RoundID)
	v.ExplorerRef = res.Round.ExplorerRef
	v.EncodedRequest = hexutil.Encode(res.Prepared.EncodedRequest)
	v.Response = hexutil.Encode(res.Proof.ResponseBytes)
	v.AttestationKind = res.Proof.AttestationKind
	v.Proof = lo.Map(res.Proof.ProofPath, func(h common.Hash, _ int) string { return h.Hex() })
	return v
}

func writeOutcomes(w io.Writer, format string, params []workflow.RequestParams, outcomes []workflow.Outcome) error {
	views := lo.Map(outcomes, func(o workflow.Outcome, _ int) outcomeView {
		return newOutcomeView(params[o.Index], o)
	})

	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case outputTable:
		table, err := summaryTable(views)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, table)
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func summaryTable(views []outcomeView) (string, error) {
	rows := lo.Map(views, func(v outcomeView, _ int) []string {
		round := "-"
		if v.RoundID != nil {
			round = strconv.FormatUint(*v.RoundID, 10)
		}
		detail := v.ExplorerRef
		if v.Error != "" {
			detail = v.ErrorType + ": " + v.Error
		}
		return []string{
			strconv.Itoa(v.Index),
			v.URL,
			v.State,
			round,
			strconv.FormatInt(v.DurationMs, 10),
			detail,
		}
	})
	return markdown.NewTableFormatterBuilder().
		WithPrettyPrint().
		Build("#", "URL", "State", "Round", "Duration (ms)", "Detail").
		Format(rows)
}
