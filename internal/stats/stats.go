// Package stats summarises a session's canonical table: per-dimension
// statistics, constant-column warnings, per-file means and correlations.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/mvlens-cli/internal/dataframe"
	"gonum.org/v1/gonum/stat"
)

// Options controls Describe.
type Options struct {
	// OutlierThreshold flags values with robust |z| above it; 0 disables.
	OutlierThreshold float64
	// Correlations computes Pearson correlations among dimensions.
	Correlations bool
	// MaxPairs limits the correlation pairs listed in the report.
	MaxPairs int
}

// DefaultOptions returns reasonable defaults.
func DefaultOptions() Options {
	return Options{OutlierThreshold: 3.5, Correlations: true, MaxPairs: 10}
}

// Report describes one canonical table.
type Report struct {
	Name       string             `json:"name"`
	Rows       int                `json:"rows"`
	Files      []string           `json:"files"`
	Dimensions []DimensionSummary `json:"dimensions"`
	PerFile    []FileSummary      `json:"perFile"`
	Pairs      []CorrPair         `json:"pairs,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// DimensionSummary captures statistics for one dimension.
type DimensionSummary struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Median     float64 `json:"median"`
	MAD        float64 `json:"mad"`
	ZeroSpread bool    `json:"zeroSpread"`
	Outliers   int     `json:"outliers"`
}

// FileSummary holds per-dimension means for the rows of one run file.
type FileSummary struct {
	File  string    `json:"file"`
	Rows  int       `json:"rows"`
	Means []float64 `json:"means"`
}

// CorrPair is the Pearson correlation between two dimensions.
type CorrPair struct {
	A string  `json:"a"`
	B string  `json:"b"`
	R float64 `json:"r"`
}

// Describe summarises f. Dimension names come from f.DimensionLabels when read.
func Describe(name string, f *dataframe.Frame, opt Options) *Report {
	r := &Report{Name: name, Rows: len(f.Matrix)}
	k := f.Dimensions()
	names := f.DimensionLabels
	if len(names) != k {
		names = make([]string, k)
		for j := range names {
			names[j] = fmt.Sprintf("%d", j+1)
		}
	}
	cols := make([][]float64, k)
	for j := range cols {
		cols[j] = make([]float64, len(f.Matrix))
		for i, row := range f.Matrix {
			cols[j][i] = row[j]
		}
	}

	for j, col := range cols {
		s := summarize(col)
		s.Name = names[j]
		if opt.OutlierThreshold > 0 && s.MAD > 0 {
			for _, x := range col {
				// 0.6745 scales MAD to a normal standard deviation.
				if math.Abs(0.6745*(x-s.Median)/s.MAD) > opt.OutlierThreshold {
					s.Outliers++
				}
			}
		}
		if s.ZeroSpread {
			r.Warnings = append(r.Warnings, fmt.Sprintf("dimension %q is constant; minMax and zScore cannot scale it", s.Name))
		}
		r.Dimensions = append(r.Dimensions, s)
	}

	byFile := map[string]*FileSummary{}
	for i, key := range f.Keys {
		fs, ok := byFile[key.File]
		if !ok {
			fs = &FileSummary{File: key.File, Means: make([]float64, k)}
			byFile[key.File] = fs
			r.Files = append(r.Files, key.File)
		}
		fs.Rows++
		for j, v := range f.Matrix[i] {
			fs.Means[j] += (v - fs.Means[j]) / float64(fs.Rows)
		}
	}
	for _, file := range r.Files {
		r.PerFile = append(r.PerFile, *byFile[file])
	}

	if opt.Correlations && k >= 2 && len(f.Matrix) >= 3 {
		for a := 0; a < k; a++ {
			for b := a + 1; b < k; b++ {
				if r.Dimensions[a].ZeroSpread || r.Dimensions[b].ZeroSpread {
					continue
				}
				r.Pairs = append(r.Pairs, CorrPair{A: names[a], B: names[b], R: stat.Correlation(cols[a], cols[b], nil)})
			}
		}
		sort.SliceStable(r.Pairs, func(i, j int) bool {
			return math.Abs(r.Pairs[i].R) > math.Abs(r.Pairs[j].R)
		})
		if opt.MaxPairs > 0 && len(r.Pairs) > opt.MaxPairs {
			r.Pairs = r.Pairs[:opt.MaxPairs]
		}
	}
	if len(f.Matrix) < 2 {
		r.Warnings = append(r.Warnings, "fewer than 2 rows; PCA and clustering need at least 2 samples")
	}
	return r
}

// summarize computes count, range and moments with Welford's update.
func summarize(vals []float64) DimensionSummary {
	s := DimensionSummary{Count: len(vals)}
	if len(vals) == 0 {
		return s
	}
	s.Min, s.Max = vals[0], vals[0]
	var mean, m2 float64
	for i, x := range vals {
		delta := x - mean
		mean += delta / float64(i+1)
		m2 += delta * (x - mean)
		s.Min = math.Min(s.Min, x)
		s.Max = math.Max(s.Max, x)
	}
	s.Mean = mean
	if len(vals) > 1 {
		s.Std = math.Sqrt(m2 / float64(len(vals)-1))
	}
	s.ZeroSpread = s.Min == s.Max
	s.Median, s.MAD = medianMAD(vals)
	return s
}

// Markdown renders the report in the bracketed-section layout used by the CLI.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("Session: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Files: %d\n", len(r.Files)))
	b.WriteString(fmt.Sprintf("Dimensions: %d\n\n", len(r.Dimensions)))

	b.WriteString("[DIMENSIONS]\n")
	for _, d := range r.Dimensions {
		b.WriteString(fmt.Sprintf("- %s: min %.4g, max %.4g, mean %.4g, std %.4g", d.Name, d.Min, d.Max, d.Mean, d.Std))
		if d.Outliers > 0 {
			b.WriteString(fmt.Sprintf("; outliers: %d", d.Outliers))
		}
		if d.ZeroSpread {
			b.WriteString(" (constant)")
		}
		b.WriteString("\n")
	}

	if len(r.PerFile) > 1 {
		b.WriteString("\n[PER-FILE MEANS]\n")
		for _, f := range r.PerFile {
			parts := make([]string, len(f.Means))
			for j, m := range f.Means {
				parts[j] = fmt.Sprintf("%.4g", m)
			}
			b.WriteString(fmt.Sprintf("- %s (n=%d): %s\n", f.File, f.Rows, strings.Join(parts, ", ")))
		}
	}
	if len(r.Pairs) > 0 {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, p := range r.Pairs {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", p.A, p.B, p.R))
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// medianMAD computes the median and the median absolute deviation.
func medianMAD(vals []float64) (median, mad float64) {
	cp := append([]float64(nil), vals...)
	sort.Float64s(cp)
	median = stat.Quantile(0.5, stat.Empirical, cp, nil)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = stat.Quantile(0.5, stat.Empirical, dev, nil)
	return median, mad
}
