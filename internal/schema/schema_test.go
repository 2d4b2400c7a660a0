package schema

import (
	"math"
	"testing"
	"time"

	"dmsetl/internal/registry"

	"github.com/google/go-cmp/cmp"
)

func TestParseTypeSpec(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      registry.TypeSpec
		want    ColumnType
		wantErr bool
	}{
		{in: registry.TypeSpec{Type: "VARCHAR(40)"}, want: Char(40)},
		{in: registry.TypeSpec{Type: "varchar", Length: 12}, want: Char(12)},
		{in: registry.TypeSpec{Type: "VARCHAR"}, want: Char(255)},
		{in: registry.TypeSpec{Type: "varchar(max)"}, want: ColumnType{Kind: KindText}},
		{in: registry.TypeSpec{Type: "DECIMAL(12,4)"}, want: ColumnType{Kind: KindNumeric, Precision: 12, Scale: 4}},
		{in: registry.TypeSpec{Type: "numeric", Precision: 10, Scale: 3}, want: ColumnType{Kind: KindNumeric, Precision: 10, Scale: 3}},
		{in: registry.TypeSpec{Type: "DECIMAL"}, want: ColumnType{Kind: KindNumeric, Precision: 18, Scale: 2}},
		{in: registry.TypeSpec{Type: "Double Precision"}, want: ColumnType{Kind: KindFloat}},
		{in: registry.TypeSpec{Type: "DATE"}, want: ColumnType{Kind: KindDate}},
		{in: registry.TypeSpec{Type: "datetime"}, want: ColumnType{Kind: KindTimestamp}},
		{in: registry.TypeSpec{Type: "BIGINT"}, want: ColumnType{Kind: KindBigInt}},
		{in: registry.TypeSpec{Type: "geometry"}, wantErr: true},
		{in: registry.TypeSpec{Type: "VARCHAR(x)"}, wantErr: true},
		{in: registry.TypeSpec{Type: "DECIMAL(2,4)"}, wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseTypeSpec(tc.in, 255)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseTypeSpec(%+v): expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseTypeSpec(%+v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseTypeSpec(%+v)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	types := map[string]registry.TypeSpec{
		"Code":                {Type: "VARCHAR(10)"},
		"Margen (computed)":   {Type: "DECIMAL(8,2)"},
		"qty":                 {Type: "INTEGER"},
		"Fecha":               {Type: "DATE"},
		"Broken":              {Type: "blob?"},
	}
	opt := Options{DefaultCharLength: 100}

	tests := []struct {
		name   string
		values []string
		opt    Options
		want   ColumnType
		src    Source
	}{
		{name: "Code", want: Char(10), src: SourceExact},
		{name: "Margen", want: ColumnType{Kind: KindNumeric, Precision: 8, Scale: 2}, src: SourceMarker},
		{name: "QTY_1", want: ColumnType{Kind: KindInteger}, src: SourceMarker},
		{name: "Fecha (computed)", want: ColumnType{Kind: KindDate}, src: SourceMarker},
		{name: "Unknown", want: Char(100), src: SourceDefault},
		{name: "Broken", want: Char(100), src: SourceDefault},
		{name: "Amount", values: []string{"1,200.50", "3"}, opt: Options{DefaultCharLength: 100, Infer: true}, want: ColumnType{Kind: KindNumeric, Precision: 18, Scale: 2}, src: SourceInferred},
	}
	for _, tc := range tests {
		o := opt
		if tc.opt != (Options{}) {
			o = tc.opt
		}
		got := Resolve(tc.name, types, tc.values, o)
		if got.Type != tc.want || got.Source != tc.src {
			t.Fatalf("Resolve(%q)=%v/%s want %v/%s", tc.name, got.Type, got.Source, tc.want, tc.src)
		}
	}
	if Resolve("Broken", types, nil, opt).Err == nil {
		t.Fatalf("unparseable declared type should be reported")
	}
}

func TestInfer(t *testing.T) {
	t.Parallel()
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	tests := []struct {
		name   string
		values []string
		want   ColumnType
	}{
		{"ints", []string{"1", "", "42"}, ColumnType{Kind: KindInteger}},
		{"bigints", []string{"1", "3000000000"}, ColumnType{Kind: KindBigInt}},
		{"decimals", []string{"1.125", "$2"}, ColumnType{Kind: KindNumeric, Precision: 18, Scale: 3}},
		{"dates", []string{"01/11/2023", "5/1/2024"}, ColumnType{Kind: KindDate}},
		{"bools", []string{"yes", "No"}, ColumnType{Kind: KindBoolean}},
		{"text", []string{"abc", "1"}, Char(255)},
		{"long_text", []string{string(long)}, ColumnType{Kind: KindText}},
		{"all_empty", []string{"", " "}, Char(255)},
	}
	for _, tc := range tests {
		if got := Infer(tc.values, 255); got != tc.want {
			t.Fatalf("%s: Infer=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestParseNumber(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1,234.50", 1234.5, true},
		{" $ 99 ", 99, true},
		{"(12.5)", -12.5, true},
		{"12.5-", -12.5, true},
		{"15%", 15, true},
		{"abc", 0, false},
		{"", 0, false},
		{"$", 0, false},
		{"Infinity", 0, false},
	}
	for _, tc := range tests {
		got, ok := ParseNumber(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("ParseNumber(%q)=(%v,%v) want (%v,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestParseDate_DMYOnly(t *testing.T) {
	t.Parallel()
	want := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"01/11/2023", "1/11/2023", "01-11-2023", "01.11.2023", "01/11/23", "01/11/2023 14:30:00"} {
		got, ok := ParseDate(in)
		if !ok || !got.Equal(want) {
			t.Fatalf("ParseDate(%q)=(%v,%v)", in, got, ok)
		}
	}
	for _, in := range []string{"2023-11-01", "11/31/2023", "32/01/2023", "garbage", ""} {
		if _, ok := ParseDate(in); ok {
			t.Fatalf("ParseDate(%q) accepted", in)
		}
	}
}

func TestParseDateOrder(t *testing.T) {
	t.Parallel()
	want := time.Date(2023, 11, 5, 0, 0, 0, 0, time.UTC)
	tests := []struct{ in, order string }{
		{"05/11/2023", "DMY"},
		{"11/05/2023", "mdy"},
		{"2023-11-05", "YMD"},
		{"2023.11.05 10:00", "YMD"},
	}
	for _, tc := range tests {
		got, ok := ParseDateOrder(tc.in, tc.order)
		if !ok || !got.Equal(want) {
			t.Fatalf("ParseDateOrder(%q,%s)=(%v,%v)", tc.in, tc.order, got, ok)
		}
	}
	if _, ok := ParseDateOrder("31/02/2023", "DMY"); ok {
		t.Fatalf("impossible date accepted")
	}
	if _, ok := ParseDateOrder("01/02/2023", "XYZ"); ok {
		t.Fatalf("unknown order accepted")
	}
}

func TestCoerce(t *testing.T) {
	t.Parallel()
	d := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		values   []string
		typ      ColumnType
		want     []any
		wantLost int
	}{
		{"char_keeps_text", []string{"", "a"}, Char(5), []any{"", "a"}, 0},
		{"int", []string{"1,000", "x", ""}, ColumnType{Kind: KindInteger}, []any{int64(1000), nil, nil}, 1},
		{"numeric_rounds_to_scale", []string{"1.005", "2.3349"}, ColumnType{Kind: KindNumeric, Precision: 10, Scale: 2}, []any{1.0, 2.33}, 0},
		{"date_dmy_or_null", []string{"01/11/2023", "2023-11-01"}, ColumnType{Kind: KindDate}, []any{d, nil}, 1},
		{"bool", []string{"1", "no", "maybe"}, ColumnType{Kind: KindBoolean}, []any{true, false, nil}, 1},
		{"bigint_out_of_range_is_null", []string{"9223372036854775807000", "-9,223,372,036,854,775,808", "12"}, ColumnType{Kind: KindBigInt}, []any{nil, int64(math.MinInt64), int64(12)}, 1},
		{"integer_is_32_bit", []string{"2147483647", "2147483648"}, ColumnType{Kind: KindInteger}, []any{int64(2147483647), nil}, 1},
	}
	for _, tc := range tests {
		got, lost := Coerce(tc.values, tc.typ)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("%s (-want +got):\n%s", tc.name, diff)
		}
		if lost != tc.wantLost {
			t.Fatalf("%s: lost=%d want %d", tc.name, lost, tc.wantLost)
		}
	}
}
