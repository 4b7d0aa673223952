package isophote

import (
	"fmt"
	"math"
	"sort"
)

// IsophoteList is an ordered (but not necessarily sorted) sequence of fitted
// isophotes. Sorting is an explicit operation; use Sort after assembling a
// list from multiple walks.
type IsophoteList []*Isophote

// Len returns the number of isophotes in the list.
func (l IsophoteList) Len() int { return len(l) }

// Slice returns a new list with the elements in [i, j). The returned list
// shares no backing storage with the receiver, only the Isophote records
// themselves.
func (l IsophoteList) Slice(i, j int) IsophoteList {
	out := make(IsophoteList, j-i)
	copy(out, l[i:j])
	return out
}

// Concat returns a new list holding the receiver's elements followed by the
// other list's. Neither operand is modified.
func (l IsophoteList) Concat(other IsophoteList) IsophoteList {
	out := make(IsophoteList, 0, len(l)+len(other))
	out = append(out, l...)
	out = append(out, other...)
	return out
}

// Extend appends the other list's elements to the receiver, mutating it in
// place. The argument is not modified.
func (l *IsophoteList) Extend(other IsophoteList) {
	*l = append(*l, other...)
}

// Sort orders the list by semi-major axis, ascending.
func (l IsophoteList) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		return l[i].SMA() < l[j].SMA()
	})
}

// GetClosest returns the isophote whose semi-major axis is nearest to the
// requested value. Ties go to the smaller semi-major axis. Returns nil for
// an empty list.
func (l IsophoteList) GetClosest(sma float64) *Isophote {
	var best *Isophote
	bestDist := math.Inf(1)
	for _, iso := range l {
		d := math.Abs(iso.SMA() - sma)
		switch {
		case d < bestDist:
			best = iso
			bestDist = d
		case d == bestDist && best != nil && iso.SMA() < best.SMA():
			best = iso
		}
	}
	return best
}

// columnAccessors maps every exportable field name to its per-isophote
// accessor. Integer and boolean fields surface as float64 so that all
// columns share one numeric representation.
var columnAccessors = map[string]func(*Isophote) float64{
	"sma":         func(i *Isophote) float64 { return i.SMA() },
	"intens":      func(i *Isophote) float64 { return i.Intens },
	"int_err":     func(i *Isophote) float64 { return i.IntErr },
	"eps":         func(i *Isophote) float64 { return i.EPS() },
	"eps_err":     func(i *Isophote) float64 { return i.EPSErr },
	"pa":          func(i *Isophote) float64 { return i.PA() },
	"pa_err":      func(i *Isophote) float64 { return i.PAErr },
	"grad":        func(i *Isophote) float64 { return i.Grad },
	"grad_err":    func(i *Isophote) float64 { return i.GradError },
	"grad_r_err":  func(i *Isophote) float64 { return i.GradRError },
	"x0":          func(i *Isophote) float64 { return i.X0() },
	"x0_err":      func(i *Isophote) float64 { return i.X0Err },
	"y0":          func(i *Isophote) float64 { return i.Y0() },
	"y0_err":      func(i *Isophote) float64 { return i.Y0Err },
	"ndata":       func(i *Isophote) float64 { return float64(i.NData) },
	"nflag":       func(i *Isophote) float64 { return float64(i.NFlag) },
	"niter":       func(i *Isophote) float64 { return float64(i.NIter) },
	"stop_code":   func(i *Isophote) float64 { return float64(i.StopCode) },
	"rms":         func(i *Isophote) float64 { return i.RMS },
	"pix_stddev":  func(i *Isophote) float64 { return i.PixStddev },
	"sarea":       func(i *Isophote) float64 { return i.SArea },
	"a3":          func(i *Isophote) float64 { return i.A3 },
	"b3":          func(i *Isophote) float64 { return i.B3 },
	"a4":          func(i *Isophote) float64 { return i.A4 },
	"b4":          func(i *Isophote) float64 { return i.B4 },
	"a3_err":      func(i *Isophote) float64 { return i.A3Err },
	"b3_err":      func(i *Isophote) float64 { return i.B3Err },
	"a4_err":      func(i *Isophote) float64 { return i.A4Err },
	"b4_err":      func(i *Isophote) float64 { return i.B4Err },
	"tflux_e":     func(i *Isophote) float64 { return i.TFluxE },
	"tflux_c":     func(i *Isophote) float64 { return i.TFluxC },
	"npix_e":      func(i *Isophote) float64 { return float64(i.NPixE) },
	"npix_c":      func(i *Isophote) float64 { return float64(i.NPixC) },
	"valid":      func(i *Isophote) float64 { return boolToFloat(i.Valid) },
}

// MainColumns is the canonical column set of the standard isophote report.
var MainColumns = []string{
	"sma", "intens", "int_err",
	"eps", "eps_err", "pa", "pa_err",
	"grad", "grad_err", "grad_r_err",
	"x0", "x0_err", "y0", "y0_err",
	"ndata", "nflag", "niter", "stop_code",
}

// allColumns extends MainColumns with the residual statistics, harmonic
// deviations, and flux integrals.
var allColumns = append(append([]string{}, MainColumns...),
	"rms", "pix_stddev", "sarea",
	"a3", "b3", "a4", "b4",
	"a3_err", "b3_err", "a4_err", "b4_err",
	"tflux_e", "tflux_c", "npix_e", "npix_c",
	"valid",
)

// ColumnNames returns the names of every exportable column.
func (l IsophoteList) ColumnNames() []string {
	out := make([]string, len(allColumns))
	copy(out, allColumns)
	return out
}

// Column derives the numeric array of one field across all members.
func (l IsophoteList) Column(name string) ([]float64, error) {
	acc, ok := columnAccessors[name]
	if !ok {
		return nil, fmt.Errorf("unknown isophote column %q", name)
	}
	out := make([]float64, len(l))
	for i, iso := range l {
		out[i] = acc(iso)
	}
	return out, nil
}

// Table is a columnar view over an IsophoteList.
type Table struct {
	Names   []string
	Columns map[string][]float64
}

// NumRows returns the number of rows in the table.
func (t *Table) NumRows() int {
	if len(t.Names) == 0 {
		return 0
	}
	return len(t.Columns[t.Names[0]])
}

// Table exports the list as named numeric columns. The column selection is
// either nil or the single element "main" for the canonical report columns,
// the single element "all" for everything, or an explicit list of field
// names.
func (l IsophoteList) Table(columns []string) (*Table, error) {
	var names []string
	switch {
	case len(columns) == 0 || (len(columns) == 1 && columns[0] == "main"):
		names = MainColumns
	case len(columns) == 1 && columns[0] == "all":
		names = allColumns
	default:
		names = columns
	}

	t := &Table{
		Names:   make([]string, len(names)),
		Columns: make(map[string][]float64, len(names)),
	}
	copy(t.Names, names)
	for _, name := range names {
		col, err := l.Column(name)
		if err != nil {
			return nil, err
		}
		t.Columns[name] = col
	}
	return t, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
