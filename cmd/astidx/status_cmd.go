package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"

	"github.com/opencodeindex/astidx/pkg/astdb"
	"github.com/opencodeindex/astidx/pkg/config"
	"github.com/opencodeindex/astidx/pkg/errs"
	"github.com/opencodeindex/astidx/pkg/ui"
)

// kvOpStat is one per-operation row of the in-process slow-op histogram.
type kvOpStat struct {
	Op         string  `json:"op"`
	Count      uint64  `json:"count"`
	SumSeconds float64 `json:"sum_seconds"`
}

// statusResult is the --json shape of 'astidx status'.
type statusResult struct {
	ModuleID  string     `json:"module_id"`
	DataDir   string     `json:"data_dir"`
	Defs      int64      `json:"defs"`
	Usages    int64      `json:"usages"`
	Docs      int64      `json:"docs"`
	ErrorsLen int        `json:"errors"`
	KvOps     []kvOpStat `json:"kv_ops,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// gatherKvOpStats dumps the in-process Prometheus registry's kv-op
// histogram. Only this process's operations are in it; the registry is
// never exposed over the network.
func gatherKvOpStats() []kvOpStat {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil
	}
	var out []kvOpStat
	for _, mf := range families {
		if mf.GetName() != "astidx_kv_op_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			op := ""
			for _, label := range m.GetLabel() {
				if label.GetName() == "op" {
					op = label.GetValue()
				}
			}
			h := m.GetHistogram()
			if h == nil {
				continue
			}
			out = append(out, kvOpStat{
				Op:         op,
				Count:      h.GetSampleCount(),
				SumSeconds: h.GetSampleSum(),
			})
		}
	}
	return out
}

// runStatus prints the durable counters and a summary of accumulated
// non-fatal errors.
func runStatus(args []string, g globalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := config.Load(g.Config)
	if err != nil {
		errs.FatalError(err, g.JSON)
	}

	logger := newLogger(g.Quiet)
	db, err := astdb.Init(cfg.DataDir, cfg.MaxFiles, cfg.PerfStats, logger)
	if err != nil {
		errs.FatalError(errs.NewInternal("cannot open index", err), g.JSON)
	}
	defer db.Close()

	counters, err := db.FetchCounters()
	if err != nil {
		errs.FatalError(errs.NewInternal("cannot read counters", err), g.JSON)
	}

	if g.JSON {
		result := statusResult{
			ModuleID:  cfg.ModuleID,
			DataDir:   cfg.DataDir,
			Defs:      counters.Defs,
			Usages:    counters.Usages,
			Docs:      counters.Docs,
			ErrorsLen: db.Errs.Len(),
			KvOps:     gatherKvOpStats(),
			Timestamp: time.Now(),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	ui.Title("%s (%s)", cfg.ModuleID, cfg.DataDir)
	fmt.Printf("  definitions: %d\n", counters.Defs)
	fmt.Printf("  usages:      %d\n", counters.Usages)
	fmt.Printf("  docs:        %d\n", counters.Docs)
	if ops := gatherKvOpStats(); len(ops) > 0 {
		fmt.Printf("  kv ops:\n")
		for _, op := range ops {
			fmt.Printf("    %-14s %d calls, %.3fs total\n", op.Op, op.Count, op.SumSeconds)
		}
	}
	if n := db.Errs.Len(); n > 0 {
		ui.Warn("  %d non-fatal errors recorded", n)
	}
}
