package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/IshaanNene/partscout/internal/config"
	"github.com/IshaanNene/partscout/internal/fetcher"
	"github.com/IshaanNene/partscout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func testEnv(t *testing.T) *Env {
	t.Helper()
	return &Env{Config: config.DefaultConfig(), Logger: testLogger}
}

func TestDefaultRegistry(t *testing.T) {
	r := Default(testLogger)

	want := []string{"autodoc", "etka", "mercedes", "realoem", "sevenzap", "ssg"}
	if got := r.Sites(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Sites = %v, want %v", got, want)
	}

	c, op, err := r.Lookup("RealOEM", "Find-Part")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if c.Site != config.SiteRealOEM || op.Name != "find-part" || op.Kind != types.KindList {
		t.Errorf("Lookup = %s/%s kind %d", c.Site, op.Name, op.Kind)
	}

	if _, _, err := r.Lookup("bmwfans", "vehicle"); !errors.Is(err, types.ErrUnsupportedOperation) {
		t.Errorf("unknown site: err = %v", err)
	}
	if _, _, err := r.Lookup("ssg", "parts"); !errors.Is(err, types.ErrUnsupportedOperation) {
		t.Errorf("unknown operation: err = %v", err)
	}
	if err := r.Register(SSG()); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestCredentialSites(t *testing.T) {
	r := Default(testLogger)
	want := map[string]bool{
		"sevenzap": true, "etka": true, "ssg": true,
		"realoem": false, "mercedes": false, "autodoc": false,
	}
	for site, creds := range want {
		c, ok := r.Get(site)
		if !ok {
			t.Fatalf("site %s missing", site)
		}
		if c.Credentials != creds {
			t.Errorf("%s: Credentials = %v, want %v", site, c.Credentials, creds)
		}
	}
}

func TestOperationCheck(t *testing.T) {
	c := RealOEM()
	group, _ := c.Operation("group")

	tests := []struct {
		name    string
		vin     string
		args    []string
		wantErr bool
	}{
		{"ok", "WBA3A5C55CF256651", []string{"brakes"}, false},
		{"no vin", "", []string{"brakes"}, true},
		{"no group", "WBA3A5C55CF256651", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := types.NewQuery("realoem", "group", tt.vin, tt.args...)
			if err != nil {
				t.Fatalf("NewQuery: %v", err)
			}
			err = group.Check(q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, types.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}

	oe, _ := Autodoc().Operation("oe")
	q, _ := types.NewQuery("autodoc", "oe", "", "8FK351001421")
	if err := oe.Check(q); err != nil {
		t.Errorf("autodoc oe without VIN: %v", err)
	}
}

func TestOperationsOrder(t *testing.T) {
	var names []string
	for _, op := range Etka().Operations() {
		names = append(names, op.Name)
	}
	if want := []string{"vehicle", "parts", "maintenance"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Operations = %v, want %v", names, want)
	}
}

func TestRealOEMGroup(t *testing.T) {
	if len(realoemGroups) != 33 {
		t.Errorf("group table has %d entries, want 33", len(realoemGroups))
	}

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"brakes", "BRAKES", true},
		{"  Heater   and Air Conditioning ", groupHeaterAC, true},
		{"AUXILIARY MATERIALS, FLUIDS/COLOR SYSTEM", "AUXILIARY MATERIALS, FLUIDS/COLOR SYSTEM", true},
		{"instruments, measuring systems", "INSTRUMENTS, MEASURING SYSTEMS", true},
		{"sliding roof / folding top", "SLIDING ROOF / FOLDING TOP", true},
		{"wipers", "", false},
	}
	for _, tt := range tests {
		got, ok := RealOEMGroup(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("RealOEMGroup(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLookupPlan(t *testing.T) {
	for _, kw := range RealOEMKeywords() {
		p, ok := lookupPlan(kw)
		if !ok {
			t.Fatalf("keyword %q not resolvable", kw)
		}
		if p.Group == "" || len(p.Titles) == 0 || p.Filter == "" {
			t.Errorf("plan for %q incomplete: %+v", kw, p)
		}
	}
	if _, ok := lookupPlan("Expansion  Valve"); !ok {
		t.Error("keywords should match case- and space-insensitively")
	}
	if _, ok := lookupPlan("wiper blade"); ok {
		t.Error("unexpected plan for wiper blade")
	}
}

func TestPlanCollect(t *testing.T) {
	tests := []struct {
		keyword string
		rows    []types.PartRow
		want    string
	}{
		{
			keyword: "compressor",
			rows: []types.PartRow{
				{Description: "RP A/C compressor", PartNumber: "64 52 9 216 467"},
				{Description: "Compressor oil", PartNumber: "83 19 2 211 191"},
				{Description: "Compressor bracket", PartNumber: "64 55 7 804 457"},
				{Description: "A/C compressor", PartNumber: "64 52 6 987 862", Notes: []string{"Discontinued"}},
			},
			want: `["64 52 9 216 467"]`,
		},
		{
			keyword: "radiator",
			rows: []types.PartRow{
				{Description: "Radiator", PartNumber: "17 11 7 788 903"},
				{Description: " Radiator ", PartNumber: "17 11 7 788 903"},
				{Description: "Radiator screw cap", PartNumber: "17 11 7 639 020"},
				{Description: "Radiator", PartNumber: "17 11 1 111 111", Notes: []string{"Ended 2012"}},
			},
			want: `["17 11 7 788 903"]`,
		},
		{
			keyword: "spark plug",
			rows: []types.PartRow{
				{Description: "Spark plug high power", Quantity: "6", PartNumber: "12 12 0 037 244"},
				{Description: "Oil filter", Quantity: "1", PartNumber: "11 42 7 953 129"},
			},
			want: `[{"part":"12 12 0 037 244","qty":"6"}]`,
		},
		{
			keyword: "front sensor",
			rows: []types.PartRow{
				{Description: "Brake pad wear sensor", PartNumber: "34 35 6 792 289"},
				{Description: "Sensor", PartNumber: "n/a"},
			},
			want: `["34 35 6 792 289"]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			plan, ok := lookupPlan(tt.keyword)
			if !ok {
				t.Fatalf("no plan")
			}
			list, err := plan.collect(tt.rows, testLogger, nil)
			if err != nil {
				t.Fatalf("collect: %v", err)
			}
			got, err := json.Marshal(list)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPlanCollectEmpty(t *testing.T) {
	plan, _ := lookupPlan("condenser")
	list, err := plan.collect(nil, testLogger, nil)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	got, _ := json.Marshal(list)
	if string(got) != "[]" {
		t.Errorf("got %s, want []", got)
	}
}

func TestTitlePatterns(t *testing.T) {
	plan, _ := lookupPlan("radiator")
	pats := plan.titlePatterns()
	if len(pats) != 1 {
		t.Fatalf("patterns = %v", pats)
	}
	if want := `/(RADIATOR[\s\S]*MOUNTING|MOUNTING[\s\S]*RADIATOR)/`; pats[0] != want {
		t.Errorf("pattern = %s, want %s", pats[0], want)
	}

	plan, _ = lookupPlan("evaporator")
	if got, want := plan.titlePatterns()[0], `/EVAPORATOR \/ EXPANSION VALVE/`; got != want {
		t.Errorf("pattern = %s, want %s", got, want)
	}

	plan, _ = lookupPlan("rear sensor")
	if len(plan.titlePatterns()) != 2 {
		t.Errorf("rear sensor should try its alternate title")
	}

	if got, want := exactTitle("Engine oil filter"), `/^\s*Engine oil filter\s*$/i`; got != want {
		t.Errorf("exactTitle = %s, want %s", got, want)
	}
	if got, want := exactTitle("Dust/pollen filter"), `/^\s*Dust\/pollen filter\s*$/i`; got != want {
		t.Errorf("exactTitle = %s, want %s", got, want)
	}
}

func TestEtkaPartKey(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"compressor", "compressor", true},
		{"Condenser", "condenser", true},
		{"expansion valve", "expansion", true},
		{"expansion", "expansion", true},
		{"radiator", "", false},
	}
	for _, tt := range tests {
		got, ok := EtkaPartKey(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("EtkaPartKey(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestResolveURL(t *testing.T) {
	base := "https://www.realoem.com/bmw/enUS/"
	if got := resolveURL(base, "/bmw/diagrams/64_1234.png"); got != "https://www.realoem.com/bmw/diagrams/64_1234.png" {
		t.Errorf("resolveURL = %s", got)
	}
	if got := resolveURL(base, "  "); got != "" {
		t.Errorf("resolveURL(empty) = %q", got)
	}
}

// Argument errors must surface before any page is opened, so these run with
// no browser at all.
func TestUnsupportedBeforeBrowser(t *testing.T) {
	r := Default(testLogger)
	env := testEnv(t)

	tests := []struct {
		site, op string
		args     []string
		want     error
	}{
		{"sevenzap", "parts", []string{"wiper"}, types.ErrUnsupportedPart},
		{"realoem", "find-part", []string{"wiper"}, types.ErrUnsupportedPart},
		{"realoem", "group", []string{"wipers"}, types.ErrUnsupportedGroup},
		{"realoem", "subgroups", []string{"wipers"}, types.ErrUnsupportedGroup},
		{"etka", "parts", []string{"radiator"}, types.ErrUnsupportedPart},
		{"etka", "maintenance", []string{"wiper"}, types.ErrUnsupportedPart},
		{"mercedes", "parts", []string{"wiper"}, types.ErrUnsupportedPart},
	}
	for _, tt := range tests {
		t.Run(tt.site+"/"+tt.op, func(t *testing.T) {
			_, op, err := r.Lookup(tt.site, tt.op)
			if err != nil {
				t.Fatal(err)
			}
			q, err := types.NewQuery(tt.site, tt.op, "WBA3A5C55CF256651", tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			_, err = op.Run(context.Background(), env, q)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if got := types.ExitCode(err); got != 4 {
				t.Errorf("exit code = %d, want 4", got)
			}
		})
	}
}

func TestNoBrowser(t *testing.T) {
	q, _ := types.NewQuery("ssg", "vehicle", "WDD2050041R123456")
	op, _ := SSG().Operation("vehicle")
	if _, err := op.Run(context.Background(), testEnv(t), q); err == nil {
		t.Fatal("expected an error without a browser")
	}
}

func TestAutodocSearchURL(t *testing.T) {
	got := AutodocSearchURL("https://www.autodoc.co.uk/", "8FK 351 001-421")
	want := "https://www.autodoc.co.uk/spares-search?keyword=8fk+351+001-421"
	if got != want {
		t.Errorf("AutodocSearchURL = %s, want %s", got, want)
	}
}

func autodocServer(t *testing.T, search http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/spares-search", search)
	mux.HandleFunc("/ridex/12345", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<ul class="product-oem__list"><li>OE 8K0260805E</li><li>OE 4G0260805</li></ul>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func autodocEnv(t *testing.T, base string) *Env {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Fetcher.Timeout = 5 * time.Second
	cfg.Catalogs[config.SiteAutodoc] = config.CatalogConfig{BaseURL: base}
	f, err := fetcher.NewHTTPFetcher(cfg, testLogger, fetcher.WithMaxAttempts(1))
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return &Env{Config: cfg, Fetcher: f, Logger: testLogger}
}

func TestAutodocHTTP(t *testing.T) {
	var keyword string
	srv := autodocServer(t, func(w http.ResponseWriter, r *http.Request) {
		keyword = r.URL.Query().Get("keyword")
		w.Write([]byte(`<div class="listing-item"><a class="listing-item__name" href="/ridex/12345">Ridex</a></div>`))
	})
	env := autodocEnv(t, srv.URL)

	q, _ := types.NewQuery("autodoc", "oe", "", "8K0260805E")
	op, _ := Autodoc().Operation("oe")
	got, err := op.Run(context.Background(), env, q)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if keyword != "8k0260805e" {
		t.Errorf("keyword = %q", keyword)
	}
	if want := []string{"8K0260805E", "4G0260805"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAutodocChallengeFallsBack(t *testing.T) {
	srv := autodocServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<title>Just a moment...</title>`))
	})
	env := autodocEnv(t, srv.URL)

	q, _ := types.NewQuery("autodoc", "oe", "", "8K0260805E")
	op, _ := Autodoc().Operation("oe")
	_, err := op.Run(context.Background(), env, q)
	if err == nil || !strings.Contains(err.Error(), "no browser") {
		t.Errorf("expected the browser fallback to be attempted, got %v", err)
	}
}

func TestFallbackToBrowser(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"challenge", &types.FetchError{StatusCode: 200, Err: types.ErrChallenged}, true},
		{"forbidden", &types.FetchError{StatusCode: 403, Err: errors.New("HTTP 403")}, true},
		{"rate limited", &types.FetchError{StatusCode: 429, Err: errors.New("HTTP 429")}, true},
		{"empty listing", types.ErrNotFound, true},
		{"gone", &types.FetchError{StatusCode: 410, Err: errors.New("HTTP 410")}, false},
		{"parse", &types.ParseError{Source: "x", Err: errors.New("bad")}, false},
	}
	for _, tt := range tests {
		if got := fallbackToBrowser(tt.err); got != tt.want {
			t.Errorf("%s: fallbackToBrowser = %v, want %v", tt.name, got, tt.want)
		}
	}
}

type fakeRowsPage struct {
	waitErr   error
	html      string
	diagnosed []string
}

func (f *fakeRowsPage) WaitAnyText(sel, text string, timeout time.Duration) error { return f.waitErr }

func (f *fakeRowsPage) Snapshot(sel string) (*types.Snapshot, error) {
	return &types.Snapshot{HTML: f.html}, nil
}

func (f *fakeRowsPage) Diagnose(tag string) { f.diagnosed = append(f.diagnosed, tag) }

func TestZapPartRowsTimeout(t *testing.T) {
	page := &fakeRowsPage{waitErr: &types.ActionError{Step: "wait any text Expansion valve", Selector: zapPartRows, Err: context.DeadlineExceeded}}

	nums, err := zapPartRowNumbers(page, testLogger, "Expansion valve")
	if !errors.Is(err, types.ErrNavigationFailed) {
		t.Fatalf("err = %v, want ErrNavigationFailed", err)
	}
	if nums != nil {
		t.Errorf("nums = %v, want nil", nums)
	}
	if types.ExitCode(err) != types.ExitNavigationFailure {
		t.Errorf("exit = %d", types.ExitCode(err))
	}
	if len(page.diagnosed) != 1 {
		t.Errorf("diagnosed = %v", page.diagnosed)
	}
}

func TestZapPartRows(t *testing.T) {
	page := &fakeRowsPage{html: `<div class="px-1 flex-grow-1"><span>Expansion valve <strong>64116968911</strong></span></div>
<div class="px-1 flex-grow-1"><span>O-ring <strong>64509174532</strong></span></div>`}

	nums, err := zapPartRowNumbers(page, testLogger, "expansion valve")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(nums, []string{"64116968911"}) {
		t.Errorf("nums = %v", nums)
	}
	if len(page.diagnosed) != 0 {
		t.Errorf("unexpected diagnose %v", page.diagnosed)
	}
}
