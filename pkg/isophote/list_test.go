package isophote

import (
	"math"
	"testing"
)

// recordList builds a list of bare isophote records at the given smas.
func recordList(t *testing.T, smas ...float64) IsophoteList {
	t.Helper()
	list := make(IsophoteList, 0, len(smas))
	for _, sma := range smas {
		list = append(list, makeRecord(t, sma))
	}
	return list
}

func TestListSort(t *testing.T) {
	list := recordList(t, 30, 10, 50, 20, 40)
	list.Sort()
	want := []float64{10, 20, 30, 40, 50}
	for i, sma := range want {
		if list[i].SMA() != sma {
			t.Errorf("position %d has sma %g, want %g", i, list[i].SMA(), sma)
		}
	}
}

func TestListSlice(t *testing.T) {
	list := recordList(t, 10, 20, 30, 40, 50)
	s := list.Slice(1, 4)
	if s.Len() != 3 {
		t.Fatalf("slice length = %d, want 3", s.Len())
	}
	if s[0].SMA() != 20 || s[2].SMA() != 40 {
		t.Errorf("slice = [%g .. %g], want [20 .. 40]", s[0].SMA(), s[2].SMA())
	}

	// appending to the slice must not clobber the original
	s.Extend(recordList(t, 99))
	if list[4].SMA() != 50 {
		t.Errorf("extending a slice changed the source list: %g", list[4].SMA())
	}
}

func TestListConcat(t *testing.T) {
	a := recordList(t, 10, 20)
	b := recordList(t, 30, 40, 50)
	c := a.Concat(b)
	if c.Len() != 5 {
		t.Fatalf("concat length = %d, want 5", c.Len())
	}
	if a.Len() != 2 || b.Len() != 3 {
		t.Error("concat modified an operand")
	}
	if c[0].SMA() != 10 || c[4].SMA() != 50 {
		t.Errorf("concat order wrong: first %g last %g", c[0].SMA(), c[4].SMA())
	}
}

func TestListExtend(t *testing.T) {
	a := recordList(t, 10, 20)
	b := recordList(t, 30, 40)
	a.Extend(b)
	if a.Len() != 4 {
		t.Fatalf("extend length = %d, want 4", a.Len())
	}
	if b.Len() != 2 {
		t.Error("extend modified its argument")
	}
	if a[3].SMA() != 40 {
		t.Errorf("extend order wrong: last = %g", a[3].SMA())
	}
}

func TestGetClosest(t *testing.T) {
	list := recordList(t, 10, 11, 12, 13, 14)

	if got := list.GetClosest(13.6); got == nil || got.SMA() != 14 {
		t.Errorf("GetClosest(13.6) = %v, want sma 14", got)
	}
	if got := list.GetClosest(12.0); got.SMA() != 12 {
		t.Errorf("GetClosest(12.0) = %g, want 12", got.SMA())
	}
	if got := list.GetClosest(-5); got.SMA() != 10 {
		t.Errorf("GetClosest(-5) = %g, want 10", got.SMA())
	}
	if got := list.GetClosest(1e6); got.SMA() != 14 {
		t.Errorf("GetClosest(1e6) = %g, want 14", got.SMA())
	}
	// ties go to the smaller sma
	if got := list.GetClosest(12.5); got.SMA() != 12 {
		t.Errorf("GetClosest(12.5) = %g, want 12 on a tie", got.SMA())
	}

	var empty IsophoteList
	if got := empty.GetClosest(10); got != nil {
		t.Errorf("GetClosest on empty list = %v, want nil", got)
	}
}

func TestColumnNames(t *testing.T) {
	list := recordList(t, 10)
	names := list.ColumnNames()
	if len(names) < 30 {
		t.Errorf("column count = %d, want at least 30", len(names))
	}
	for _, name := range names {
		if _, err := list.Column(name); err != nil {
			t.Errorf("advertised column %q not resolvable: %v", name, err)
		}
	}
}

func TestColumn(t *testing.T) {
	list := recordList(t, 10, 20, 30)
	col, err := list.Column("sma")
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{10, 20, 30}
	for i := range want {
		if col[i] != want[i] {
			t.Errorf("sma[%d] = %g, want %g", i, col[i], want[i])
		}
	}

	if _, err := list.Column("no_such_column"); err == nil {
		t.Error("unknown column name did not error")
	}
}

func TestTableColumnSets(t *testing.T) {
	list := recordList(t, 10, 20)

	main, err := list.Table(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(main.Names) != 18 {
		t.Errorf("main table has %d columns, want 18", len(main.Names))
	}
	if main.NumRows() != 2 {
		t.Errorf("main table has %d rows, want 2", main.NumRows())
	}

	named, err := list.Table([]string{"main"})
	if err != nil {
		t.Fatal(err)
	}
	if len(named.Names) != len(main.Names) {
		t.Errorf(`Table(["main"]) has %d columns, Table(nil) has %d`,
			len(named.Names), len(main.Names))
	}

	all, err := list.Table([]string{"all"})
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Names) <= len(main.Names) {
		t.Errorf("all table has %d columns, want more than main's %d",
			len(all.Names), len(main.Names))
	}

	explicit, err := list.Table([]string{"sma", "eps", "valid"})
	if err != nil {
		t.Fatal(err)
	}
	if len(explicit.Names) != 3 {
		t.Errorf("explicit table has %d columns, want 3", len(explicit.Names))
	}
	if explicit.Columns["sma"][1] != 20 {
		t.Errorf("explicit sma column = %v", explicit.Columns["sma"])
	}
	if explicit.Columns["valid"][0] != 0 {
		t.Errorf("valid column = %g for an invalid record, want 0",
			explicit.Columns["valid"][0])
	}

	if _, err := list.Table([]string{"sma", "bogus"}); err == nil {
		t.Error("table with unknown column did not error")
	}
}

func TestTableHoldsNaNForFailedFits(t *testing.T) {
	list := recordList(t, 10)
	tbl, err := list.Table([]string{"intens", "stop_code"})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(tbl.Columns["intens"][0]) {
		t.Errorf("intens = %g for a failed record, want NaN", tbl.Columns["intens"][0])
	}
	if tbl.Columns["stop_code"][0] != StopFailed {
		t.Errorf("stop_code = %g, want %d", tbl.Columns["stop_code"][0], StopFailed)
	}
}
