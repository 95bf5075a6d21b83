package lld

import (
	"slices"
	"testing"
)

func cpuFunctions() FunctionTable {
	return NewFunctionTable([]FunctionRef{
		{FunctionID: 13, Host: "host", Key: "cpu.load", Function: "avg", Parameter: "5m"},
		{FunctionID: 12, Host: "host", Key: "cpu.load", Function: "last"},
	})
}

func TestExpandExpression(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"{12}+{13}", "{host:cpu.load.last()}+{host:cpu.load.avg(5m)}"},
		{"{12}>{999}", "{host:cpu.load.last()}>{999}"},
		{"{$THRESHOLD}<{12}", "{$THRESHOLD}<{host:cpu.load.last()}"},
		{"{#FSNAME} {} {12", "{#FSNAME} {} {12"},
		{"{{12}", "{{host:cpu.load.last()}"},
		{"{$X{13}}>0", "{$X{host:cpu.load.avg(5m)}}>0"},
	}
	for _, tt := range tests {
		if got := ExpandExpression(tt.expr, cpuFunctions()); got != tt.want {
			t.Fatalf("ExpandExpression(%q) = %q, want %q", tt.expr, got, tt.want)
		}
	}
}

func TestFunctionTableLookup(t *testing.T) {
	table := cpuFunctions()
	if table.Len() != 2 {
		t.Fatalf("expected 2 functions, got %d", table.Len())
	}
	if f, ok := table.Lookup(13); !ok || f.Function != "avg" {
		t.Fatalf("expected avg for 13, got %+v ok=%v", f, ok)
	}
	if _, ok := table.Lookup(14); ok {
		t.Fatalf("expected 14 to be missing")
	}
}

func TestRemapFunctionIDs(t *testing.T) {
	got := remapFunctionIDs("{12}>0&{13}<{12}|{7}|{{13}", map[int64]int64{12: 112, 13: 113})
	if got != "{112}>0&{113}<{112}|{7}|{{113}" {
		t.Fatalf("unexpected remap: %q", got)
	}
}

func TestFunctionIDs_DistinctInOrder(t *testing.T) {
	got := functionIDs("{13}>0|{{12}>0|{13}<5|{$X}")
	if !slices.Equal(got, []int64{13, 12}) {
		t.Fatalf("unexpected ids: %v", got)
	}
}
