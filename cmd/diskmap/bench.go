package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/diskmap"
	"github.com/hupe1980/diskmap/keys"
)

func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "measure put, get and remove latency",
		Long: `Run a put/get/remove workload against a scratch map and print
latency percentiles per operation. Without --file the store lives in
memory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd.OutOrStdout(), benchConfig{
				keys:       viper.GetInt("keys"),
				workers:    viper.GetInt("workers"),
				valueSize:  viper.GetInt("value-size"),
				loadFactor: viper.GetUint("load-factor"),
				ordered:    viper.GetBool("ordered"),
				prometheus: viper.GetBool("prometheus"),
			})
		},
	}
	cmd.Flags().Int("keys", 100_000, "number of distinct keys")
	cmd.Flags().Int("workers", 8, "number of concurrent workers")
	cmd.Flags().Int("value-size", 128, "value size in bytes")
	cmd.Flags().Uint("load-factor", 10, "hash load factor (0-19)")
	cmd.Flags().Bool("ordered", false, "benchmark a skip-list map instead of a hash map")
	cmd.Flags().Bool("prometheus", false, "also print the store metrics in Prometheus format")
	return cmd
}

type benchConfig struct {
	keys       int
	workers    int
	valueSize  int
	loadFactor uint
	ordered    bool
	prometheus bool
}

func runBench(w io.Writer, cfg benchConfig) error {
	if cfg.keys <= 0 || cfg.workers <= 0 {
		return fmt.Errorf("keys and workers must be positive")
	}
	lf := uint8(cfg.loadFactor)
	if cfg.ordered {
		lf = diskmap.Ordered
	}

	collector := diskmap.NewVictoriaMetricsCollector("bench")
	opts, err := builderOptions(diskmap.WithMetricsCollector(collector))
	if err != nil {
		return err
	}

	var b *diskmap.Builder
	if path := viper.GetString("file"); path != "" {
		b, err = diskmap.Open(path, opts...)
	} else {
		b, err = diskmap.OpenMemory(opts...)
	}
	if err != nil {
		return err
	}
	defer b.Close()

	name := fmt.Sprintf("bench-%d", time.Now().UnixNano())
	m, err := diskmap.MapByName[uint64, []byte](b, name, lf, keys.Uint64())
	if err != nil {
		return err
	}

	registry := gometrics.NewRegistry()
	value := make([]byte, cfg.valueSize)
	phases := []struct {
		name string
		op   func(k uint64) error
	}{
		{"put", func(k uint64) error { return m.Put(k, value) }},
		{"get", func(k uint64) error { _, _, err := m.Get(k); return err }},
		{"overwrite", func(k uint64) error { return m.Put(k, value) }},
		{"remove", func(k uint64) error { _, err := m.Remove(k); return err }},
	}

	fmt.Fprintf(w, "strategy %s, %d keys, %d workers, %d byte values\n\n", m.Strategy(), cfg.keys, cfg.workers, cfg.valueSize)
	for _, p := range phases {
		timer := gometrics.GetOrRegisterTimer(p.name, registry)
		start := time.Now()
		if err := runPhase(cfg, timer, p.op); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		elapsed := time.Since(start)
		fmt.Fprintf(w, "%-10s %8.0f ops/s\n", p.name, float64(cfg.keys)/elapsed.Seconds())
	}

	fmt.Fprintln(w)
	printTimers(w, registry)

	start := time.Now()
	if err := b.Commit(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\ncommit     %v\n", time.Since(start))

	if cfg.prometheus {
		fmt.Fprintln(w)
		collector.Set().WritePrometheus(w)
	}
	return nil
}

func runPhase(cfg benchConfig, timer gometrics.Timer, op func(k uint64) error) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for worker := range cfg.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(worker), 1))
			ks := make([]uint64, 0, cfg.keys/cfg.workers+1)
			for k := worker; k < cfg.keys; k += cfg.workers {
				ks = append(ks, uint64(k))
			}
			r.Shuffle(len(ks), func(i, j int) { ks[i], ks[j] = ks[j], ks[i] })

			for _, k := range ks {
				start := time.Now()
				err := op(k)
				timer.UpdateSince(start)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func printTimers(w io.Writer, registry gometrics.Registry) {
	var names []string
	registry.Each(func(name string, _ any) {
		names = append(names, name)
	})
	sort.Strings(names)

	fmt.Fprintf(w, "%-10s %10s %10s %10s %10s %10s\n", "op", "count", "mean", "p50", "p99", "max")
	for _, name := range names {
		t, ok := registry.Get(name).(gometrics.Timer)
		if !ok {
			continue
		}
		s := t.Snapshot()
		ps := s.Percentiles([]float64{0.5, 0.99})
		fmt.Fprintf(w, "%-10s %10d %10v %10v %10v %10v\n", name, s.Count(),
			time.Duration(s.Mean()), time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(s.Max()))
	}
}
