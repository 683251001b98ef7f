package parser

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/IshaanNene/partscout/internal/types"
)

func TestNormalize(t *testing.T) {
	if got := NormalizeText("  A/C  Compressor\n"); got != "a/c compressor" {
		t.Errorf("NormalizeText = %q", got)
	}
	if got := NormalizeAlnum("A/C-Compressor, (front)"); got != "a c compressor front" {
		t.Errorf("NormalizeAlnum = %q", got)
	}
	if got := stripAlnum("A/C  Compressor!"); got != "ac compressor" {
		t.Errorf("stripAlnum = %q", got)
	}
}

func TestParsePartsListText(t *testing.T) {
	text := strings.Join([]string{
		"No.\tDescription\tSupp.\tQty\tFrom\tUp To\tPart Number\tPrice\tNotes",
		"01\tCompressor\t\t1\t03/2010\t\t64529122618\t$612.00\tReman",
		"   with magnetic clutch   ",
		"",
		"02\tBolt\tM8X30\t3\t\t\t07119904567\t$1.10\t",
	}, "\n")

	rows := ParsePartsListText(text)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	r := rows[0]
	if r.ItemNo != "01" || r.Description != "Compressor" || r.Quantity != "1" || r.FromDate != "03/2010" {
		t.Errorf("unexpected first row: %+v", r)
	}
	if r.PartNumber != "64529122618" || r.Price != "$612.00" {
		t.Errorf("unexpected part/price: %q %q", r.PartNumber, r.Price)
	}
	if !reflect.DeepEqual(r.Notes, []string{"Reman", "with magnetic clutch"}) {
		t.Errorf("unexpected notes: %#v", r.Notes)
	}

	if rows[1].Supplement != "M8X30" || rows[1].Notes == nil || len(rows[1].Notes) != 0 {
		t.Errorf("unexpected second row: %+v", rows[1])
	}
}

func TestParsePartsListTextIgnoresLeadingNoise(t *testing.T) {
	rows := ParsePartsListText("stray line\n01\tHose\t\t1\t\t\t64539229933\t\t")
	if len(rows) != 1 || rows[0].Description != "Hose" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if len(rows[0].Notes) != 0 {
		t.Errorf("stray line before first row must be dropped, got %v", rows[0].Notes)
	}
}

func TestParsePartsTable(t *testing.T) {
	html := `<table><tbody>
<tr><td>No.</td><td>Description</td></tr>
<tr><td>01</td><td> Brake pad set </td><td></td><td>1</td><td></td><td></td>
<td><a class="inline-a" href="#">34116850568</a></td><td></td><td></td><td>Front axle</td></tr>
</tbody></table>`

	rows, err := ParsePartsTable(html)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	want := types.PartRow{Description: "Brake pad set", Quantity: "1", PartNumber: "34116850568", Notes: []string{"Front axle"}}
	if !reflect.DeepEqual(rows[0], want) {
		t.Errorf("got %+v, want %+v", rows[0], want)
	}
}

func TestParseSelectedOptions(t *testing.T) {
	html := `<form>
<select><option selected>Language</option></select>
<select><option selected>Car</option></select>
<select><option selected>BMW</option></select>
<select><option selected>3' E90</option></select>
<select><option selected>Sedan</option></select>
</form>`

	attrs, err := ParseSelectedOptions(html)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(attrs.Keys(), []string{"product", "catalog", "series", "body"}) {
		t.Errorf("unexpected keys %v", attrs.Keys())
	}
	if attrs.GetString("series") != "3' E90" {
		t.Errorf("series = %q", attrs.GetString("series"))
	}
}

func TestSubgroupTitles(t *testing.T) {
	html := `<div class="title">Browse Parts</div>
<div class="title">Front brake pads</div>
<div class="title"> </div>
<div class="title">REP. KIT, BRAKE PADS</div>
<div class="title">Rear brake pads</div>`

	titles, err := ParseSubgroupTitles(html)
	if err != nil {
		t.Fatal(err)
	}
	if len(titles) != 3 {
		t.Fatalf("expected 3 titles, got %+v", titles)
	}
	if titles[0].Index != 1 || titles[1].Index != 3 || !titles[1].Kit || titles[2].Index != 4 {
		t.Errorf("unexpected titles: %+v", titles)
	}

	if got := SubgroupNames(titles); !reflect.DeepEqual(got, []string{"front brake pads", "rear brake pads"}) {
		t.Errorf("SubgroupNames = %v", got)
	}

	filtered := FilterSubgroups(titles, []string{"REAR"})
	if len(filtered) != 1 || filtered[0].Name != "Rear brake pads" {
		t.Errorf("FilterSubgroups = %+v", filtered)
	}
	if got := FilterSubgroups(titles, nil); len(got) != 3 {
		t.Errorf("no filters should keep everything, got %d", len(got))
	}
}

func TestParseHeaderValueTable(t *testing.T) {
	html := `<table id="htmlTableModifications">
<thead><tr><th></th><th>Model</th><th>Engine</th><th>Year</th></tr></thead>
<tbody><tr><td><input type="radio"></td><td>A4</td><td>CDNC 2.0</td></tr></tbody>
</table>`

	attrs, err := ParseHeaderValueTable(html)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(attrs.Keys(), []string{"Model", "Engine", "Year"}) {
		t.Fatalf("unexpected keys %v", attrs.Keys())
	}
	if attrs.GetString("Engine") != "CDNC 2.0" || attrs.GetString("Year") != "" {
		t.Errorf("unexpected values: engine=%q year=%q", attrs.GetString("Engine"), attrs.GetString("Year"))
	}
}

func TestParseSpanStrongNumbers(t *testing.T) {
	html := `<div class="px-1 flex-grow-1"><span>Brake pad set, front <strong>8W0698151AB</strong></span></div>
<div class="px-1 flex-grow-1"><span>Wear indicator <strong>8W0615121</strong></span></div>
<div class="px-1 flex-grow-1"><span>BRAKE PAD SET <strong>8W0698151AC</strong></span></div>`

	nums, err := ParseSpanStrongNumbers(html, "Brake pad set")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(nums, []string{"8W0698151AB", "8W0698151AC"}) {
		t.Errorf("got %v", nums)
	}
}

func TestParseKeyValueRows(t *testing.T) {
	html := `<div class="modal-dialog">
<table><tbody><tr><td>ignored</td><td>x</td></tr></tbody></table>
<table><tbody>
<tr><td>Model</td><td> A4 Avant </td></tr>
<tr><td>Engine code</td><td>CDNC</td></tr>
<tr><td colspan="2">separator</td></tr>
</tbody></table></div>`

	attrs, err := ParseKeyValueRows(html)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(attrs.Keys(), []string{"Model", "Engine code"}) {
		t.Fatalf("unexpected keys %v", attrs.Keys())
	}
	if attrs.GetString("Model") != "A4 Avant" {
		t.Errorf("Model = %q", attrs.GetString("Model"))
	}
}

func TestSelectEtkaSubgroup(t *testing.T) {
	html := `<table class="subGrTable">
<tr data-ps-active="1"><td>Air conditioner compressor bracket</td></tr>
<tr><td>Condenser</td></tr>
<tr data-ps-active="1"><td>Evaporator housing</td></tr>
<tr data-ps-active="1"><td>Compressor</td></tr>
</table>`

	tests := []struct {
		key   string
		idx   int
		found bool
	}{
		{"compressor", 3, true},
		{"expansion", 2, true},
		{"condenser", 0, false},
	}
	for _, tt := range tests {
		idx, found, err := SelectEtkaSubgroup(html, tt.key)
		if err != nil {
			t.Fatal(err)
		}
		if idx != tt.idx || found != tt.found {
			t.Errorf("%s: got (%d, %v), want (%d, %v)", tt.key, idx, found, tt.idx, tt.found)
		}
	}
}

func TestParseEtkaDetails(t *testing.T) {
	html := `<table class="detailsTable"><tr>
<td class="etkTd" num="8K0260805A" numn="1" title="t1" data-ps-active="1">Compressor oil</td>
<td class="etkTd">Bracket</td>
<td class="etkTd" num="8K0260805C" numn="3" title="t3" data-ps-active="1">A/C compressor</td>
</tr></table>`

	d, err := ParseEtkaDetails(html, "Compressor")
	if err != nil {
		t.Fatal(err)
	}
	if d == nil {
		t.Fatal("expected a detail")
	}
	want := EtkaDetail{Num: "8K0260805C", NumN: "3", Title: "t3", Text: "A/C compressor"}
	if *d != want {
		t.Errorf("got %+v, want %+v", *d, want)
	}

	d, err = ParseEtkaDetails(html, "condenser")
	if err != nil || d != nil {
		t.Errorf("expected no condenser detail, got %+v, %v", d, err)
	}
}

func TestMaintenanceCategory(t *testing.T) {
	cat, withQty, ok := MaintenanceCategory(" Spark-Plugs ")
	if !ok || cat != "Spark plugs" || !withQty {
		t.Errorf("spark plugs: %q %v %v", cat, withQty, ok)
	}
	cat, withQty, ok = MaintenanceCategory("pollen filter")
	if !ok || cat != "Dust/pollen filter" || withQty {
		t.Errorf("pollen filter: %q %v %v", cat, withQty, ok)
	}
	if _, _, ok := MaintenanceCategory("wiper blade"); ok {
		t.Error("wiper blade should be unsupported")
	}
	if len(MaintenanceParts()) == 0 {
		t.Error("MaintenanceParts should not be empty")
	}
}

func TestParseEtkaSpares(t *testing.T) {
	html := `<div id="spareContent0"><table><tbody>
<tr><td></td><td></td><td>Part</td><td></td><td></td><td>Qty</td></tr>
<tr><td></td><td></td><td>101905601F</td><td></td><td></td><td>4 pcs</td></tr>
<tr><td></td><td></td><td>06H905601A</td><td></td><td></td><td>4</td></tr>
</tbody></table></div>`

	list, err := ParseEtkaSpares(html, true)
	if err != nil {
		t.Fatal(err)
	}
	if list.Len() != 2 || list.Items[0].Number != "101905601F" || list.Items[0].Qty != "4 pcs" {
		t.Errorf("unexpected list: %+v", list.Items)
	}

	list, err = ParseEtkaSpares(`<div id="spareContent0"></div>`, false)
	if err != nil {
		t.Fatal(err)
	}
	if list.Items == nil || list.Len() != 0 {
		t.Errorf("expected empty, non-nil items, got %#v", list.Items)
	}
}

func TestParseMercedesParts(t *testing.T) {
	html := `<table class="table table-striped table-condensed table-hover"><tbody>
<tr><td>Pos.</td><td>Part</td><td><b>COMPRESSOR</b></td><td>Qty</td></tr>
<tr><td>010</td><td>A0022305111</td><td><b>REFRIGERANT COMPRESSOR</b> with clutch</td><td>1</td></tr>
<tr><td>020</td><td>A0009901234</td><td><b>COMPRESSOR BRACKET</b></td><td>2</td></tr>
<tr><td>030</td><td>A0032300011</td><td><b>COMPRESSOR</b></td><td>1</td></tr>
<tr><td>040</td><td>A0000000000</td><td>no label</td><td>1</td></tr>
</tbody></table>`

	part, ok := LookupMercedesPart("A/C Compressor")
	if !ok || part.Section != "A/C COMPRESSOR" {
		t.Fatalf("lookup failed: %+v %v", part, ok)
	}

	attrs, err := ParseMercedesParts(html, part.Patterns)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(attrs.Keys(), []string{"A0022305111", "A0032300011"}) {
		t.Errorf("unexpected parts %v", attrs.Keys())
	}
	if attrs.GetString("A0022305111") != "1" {
		t.Errorf("qty = %q", attrs.GetString("A0022305111"))
	}

	if _, ok := LookupMercedesPart("wiper"); ok {
		t.Error("wiper should not resolve")
	}
}

func TestParseMercedesVehicle(t *testing.T) {
	html := `<html><body>
<h3>Engine</h3><div class="tree">M 274.920
  <span>2.0 l</span></div>
<h3>Springs</h3>
<h3>Paint</h3><div class="tree col">Obsidian black</div>
<h3>Extras</h3>
</body></html>`

	attrs, err := ParseMercedesVehicle(html)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(attrs.Keys(), []string{"Engine", "Springs", "Paint"}) {
		t.Fatalf("unexpected keys %v", attrs.Keys())
	}
	if attrs.GetString("Engine") != "M 274.920\n2.0 l" {
		t.Errorf("Engine = %q", attrs.GetString("Engine"))
	}
	if attrs.GetString("Springs") != attrs.GetString("Engine") {
		t.Errorf("Springs should reuse the previous tree, got %q", attrs.GetString("Springs"))
	}
	if attrs.GetString("Paint") != "Obsidian black" {
		t.Errorf("Paint = %q", attrs.GetString("Paint"))
	}

	_, err = ParseMercedesVehicle("<p>empty</p>")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestParseSSGVehicle(t *testing.T) {
	html := `<div class="row shadow rounded mb-3 pt-2 pb-2 car-row">
<h3 class="pb-2">Audi</h3><h5>A4 Avant</h5><small title="Body">Estate</small>
<span class="badge badge-info">quattro</span><span class="badge badge-info">S line</span>
<div title="Year">2012</div><div class="Engine">2.0 TFSI</div><small title="Engine code">CDNC</small>
<div class="col-md-6"><div><div class="col-lg col-md-12">Automatic</div></div></div>
</div>
<div id="dcr-0"><div>Type: 8K5</div><div>Class: B8</div><div>Production period: 2008 - 2015</div></div>`

	attrs, err := ParseSSGVehicle(html)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"brand": "Audi", "model": "A4 Avant", "body": "Estate", "year": "2012",
		"engine": "2.0 TFSI", "engine_code": "CDNC", "transmission": "Automatic",
		"type": "8K5", "class": "B8", "production_period": "2008 - 2015",
	}
	for k, v := range want {
		if got := attrs.GetString(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	tags, _ := attrs.Get("tags")
	if !reflect.DeepEqual(tags, []string{"quattro", "S line"}) {
		t.Errorf("tags = %#v", tags)
	}
}

func TestAutodoc(t *testing.T) {
	if got := CapitalizePartNumber(" aBC123 "); got != "Abc123" {
		t.Errorf("CapitalizePartNumber = %q", got)
	}

	oe, err := ParseAutodocOE(`<ul class="product-oem__list"><li>OE 8K0260805E</li><li>Brand only</li><li>OE  4G0260805</li></ul>`)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(oe, []string{"8K0260805E", "4G0260805"}) {
		t.Errorf("OE numbers = %v", oe)
	}

	link, err := ParseAutodocFirstListing(`<a class="listing-item__name" href="/ridex/12345">Ridex compressor</a>`, "https://www.autodoc.co.uk/spares-search?keyword=x")
	if err != nil {
		t.Fatal(err)
	}
	if link != "https://www.autodoc.co.uk/ridex/12345" {
		t.Errorf("link = %q", link)
	}

	link, err = ParseAutodocFirstListing(`<div>nothing</div>`, "https://www.autodoc.co.uk/")
	if err != nil || link != "" {
		t.Errorf("expected empty link, got %q, %v", link, err)
	}
}
