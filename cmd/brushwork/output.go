package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/tidwall/pretty"

	"github.com/dshills/brushwork/internal/observability"
	"github.com/dshills/brushwork/internal/plugin"
)

// reportedError is a failure whose message was already printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

// printJSON writes v as indented JSON, colored on a terminal.
func printJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = pretty.Pretty(data)
	if observability.IsTerminal(w) {
		data = pretty.Color(data, nil)
	}
	_, err = w.Write(data)
	return err
}

// newTable returns a tabwriter for aligned columns.
func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// printResult reports the outcome of a mutation. A failed result is
// returned as an error so the command exits non-zero.
func (o *options) printResult(res plugin.Result) error {
	if o.json {
		if err := printJSON(o.out, res); err != nil {
			return err
		}
		if !res.OK {
			return &reportedError{err: resultError(res)}
		}
		return nil
	}
	if !res.OK {
		return resultError(res)
	}
	_, err := fmt.Fprintln(o.out, res.Message)
	return err
}

// resultError carries the localized message of a failed result.
type resultError plugin.Result

func (e resultError) Error() string { return e.Message }

func (e resultError) Unwrap() error { return e.Err }

// jsonValue renders a setting value on one line.
func jsonValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
