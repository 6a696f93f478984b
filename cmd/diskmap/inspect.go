package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/diskmap"
	"github.com/hupe1980/diskmap/keys"
)

func mustExist(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("store file %s: %w", path, err)
	}
	return nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "print space and cache usage of a store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := openFile(false)
			if err != nil {
				return err
			}
			defer b.Close()

			s := b.Stats()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "path\t%s\n", s.Path)
			fmt.Fprintf(w, "file size\t%d\n", s.FileSize)
			fmt.Fprintf(w, "slice size\t%d\n", s.SliceSize)
			fmt.Fprintf(w, "mapped slices\t%d\n", s.MappedSlices)
			fmt.Fprintf(w, "free blocks\t%d\n", s.FreeBlocks)
			fmt.Fprintf(w, "free bytes\t%d\n", s.FreeBytes)
			fmt.Fprintf(w, "named maps\t%d\n", s.NamedMaps)
			return w.Flush()
		},
	}
}

func newMapsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maps",
		Short: "list the named maps of a store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := openFile(false)
			if err != nil {
				return err
			}
			defer b.Close()

			names, err := b.MapNames()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTRATEGY\tLOAD FACTOR\tKEYS\tRECORDS\tHEADER")
			for _, name := range names {
				h, ok, err := b.MapHeader(name)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				lf := "-"
				if h.Strategy != diskmap.StrategySkipList {
					lf = fmt.Sprint(h.LoadFactor)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
					name, h.Strategy, lf, keys.Kind(h.KeyKind), h.RecordCount, h.Position)
			}
			return w.Flush()
		},
	}
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump <map>",
		Short: "print the entries of a named map as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openFile(false)
			if err != nil {
				return err
			}
			defer b.Close()

			h, ok, err := b.MapHeader(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("map %q does not exist", args[0])
			}
			return dumpMap(b, args[0], h, cmd.OutOrStdout(), viper.GetInt("limit"))
		},
	}
	cmd.Flags().Int("limit", 0, "maximum number of entries to print (0 prints all)")
	return cmd
}

func loadFactorOf(h diskmap.Header) uint8 {
	if h.Strategy == diskmap.StrategySkipList {
		return diskmap.Ordered
	}
	return h.LoadFactor
}

func dumpMap(b *diskmap.Builder, name string, h diskmap.Header, w io.Writer, limit int) error {
	switch keys.Kind(h.KeyKind) {
	case keys.KindString:
		return dump(b, name, h, keys.String(), w, limit)
	case keys.KindBytes:
		return dump(b, name, h, keys.Bytes(), w, limit)
	case keys.KindInt64:
		return dump(b, name, h, keys.Int64(), w, limit)
	case keys.KindInt:
		return dump(b, name, h, keys.Int(), w, limit)
	case keys.KindUint64:
		return dump(b, name, h, keys.Uint64(), w, limit)
	case keys.KindFloat64:
		return dump(b, name, h, keys.Float64(), w, limit)
	case keys.KindTime:
		return dump(b, name, h, keys.Time(), w, limit)
	default:
		return fmt.Errorf("map %q: cannot dump keys of kind %s", name, keys.Kind(h.KeyKind))
	}
}

func dump[K any](b *diskmap.Builder, name string, h diskmap.Header, kc keys.Codec[K], w io.Writer, limit int) error {
	m, err := diskmap.MapByName[K, any](b, name, loadFactorOf(h), kc)
	if err != nil {
		return err
	}

	enc := gojson.NewEncoder(w)
	n := 0
	for e, err := range m.All() {
		if err != nil {
			return err
		}
		if err := enc.Encode(map[string]any{"key": e.Key, "value": e.Value}); err != nil {
			return err
		}
		if n++; limit > 0 && n >= limit {
			break
		}
	}
	return nil
}
