package srp

import (
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/fetchbot"
	"github.com/PuerkitoBio/goquery"
	"github.com/heavyparts/parts_site_builder/spiderdata"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu      sync.Mutex
	records []spiderdata.Record
}

func (c *collector) Write(rec spiderdata.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func pageContext(t *testing.T, pageURL string) (*spiderdata.Context, *collector) {
	t.Helper()
	out := &collector{}
	g := spiderdata.NewGlobals(Target(nil), out, zerolog.Nop())
	require.NoError(t, g.AddSeedHosts(baseURL))
	u, err := url.Parse(pageURL)
	require.NoError(t, err)
	return &spiderdata.Context{Cmd: &fetchbot.Cmd{U: u, M: "GET"}, G: g}, out
}

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

const productPage = `<html><body>
<ol class="breadcrumb">
  <li><a href="/">Anasayfa</a></li>
  <li><a href="/urunler/volvo">Volvo</a></li>
  <li><a href="/urunler/volvo/sanziman">Şanzıman</a></li>
  <li>Drive gear set</li>
</ol>
<div class="product-detail">
  <h1 class="product-title">Drive  gear set</h1>
  <div class="product-brand">VOLVO</div>
  <div class="product-code">Parça No: 11102474</div>
  <div class="product-description">Gear set for L120 wheel loaders.</div>
  <img class="product-image" src="/img/11102474.jpg">
  <table class="product-specs">
    <tr><th>Ağırlık</th><td>4,2&nbsp;kg</td></tr>
    <tr><th>Diş Sayısı</th><td>23</td></tr>
    <tr><th>Marka</th><td>Volvo CE</td></tr>
  </table>
  <ul class="oem-numbers"><li>VOE 11102474</li><li> </li></ul>
  <ul class="compatible-models"><li>L120E</li><li>L150E</li></ul>
  <span class="stock-status">Stokta</span>
</div>
</body></html>`

func TestParseProductPage(t *testing.T) {
	ctx, out := pageContext(t, baseURL+"/urun/11102474?ref=list")
	ParseSRPPage(ctx, parse(t, productPage))

	require.Len(t, out.records, 1)
	rec := out.records[0]
	assert.Equal(t, "11102474", rec.PartNumber)
	assert.Equal(t, "Drive gear set", rec.PartName)
	assert.Equal(t, "VOLVO", rec.Brand)
	assert.Equal(t, "Şanzıman", rec.Category)
	assert.Equal(t, "Volvo > Şanzıman", rec.Breadcrumb)
	assert.Equal(t, map[string]string{"Ağırlık": "4,2 kg", "Diş Sayısı": "23"}, rec.Specs)
	assert.Equal(t, []string{"VOE 11102474"}, rec.OEMNumbers)
	assert.Equal(t, []string{"L120E", "L150E"}, rec.CompatibleModels)
	assert.Equal(t, baseURL+"/img/11102474.jpg", rec.Image)
	assert.Equal(t, baseURL+"/urun/11102474", rec.URL)
	assert.Equal(t, "srp_scrape", rec.Source)
	assert.False(t, rec.Discontinued)
}

func TestParseListingPage(t *testing.T) {
	ctx, out := pageContext(t, baseURL+"/urunler/volvo")
	ParseSRPPage(ctx, parse(t, `<html><body>
<ol class="breadcrumb"><li>Anasayfa</li><li>Volvo</li></ol>
<ul class="category-list"><li><a href="/urunler/volvo/motor">Motor</a></li></ul>
<div class="product-list">
  <a class="product-link" href="/urun/11102474" title="Drive gear set">x</a>
  <a class="product-link" href="https://other.example/urun/1">elsewhere</a>
</div>
<ul class="pagination"><li><a href="/urunler/volvo?page=2">2</a></li><li><a href="/urunler/volvo?page=3#list">3</a></li></ul>
</body></html>`))

	assert.Empty(t, out.records)
	assert.Equal(t, "Volvo > Drive gear set", ctx.G.BreadcrumbMap[baseURL+"/urun/11102474"])
	assert.Equal(t, "Volvo > Motor", ctx.G.BreadcrumbMap[baseURL+"/urunler/volvo/motor"])
	assert.Equal(t, "Volvo", ctx.G.BreadcrumbMap[baseURL+"/urunler/volvo?page=2"], "paging keeps the trail of the first page")
	assert.Contains(t, ctx.G.BreadcrumbMap, baseURL+"/urunler/volvo?page=3")
	assert.NotContains(t, ctx.G.BreadcrumbMap, "https://other.example/urun/1")
}

func TestDiscontinued(t *testing.T) {
	ctx, out := pageContext(t, baseURL+"/urun/1")
	ParseSRPPage(ctx, parse(t, `<div class="product-detail"><h1>Filter</h1>
		<div class="product-code">Parça No: 1R-0750</div>
		<span class="stock-status">Üretimi durdu</span></div>`))
	require.Len(t, out.records, 1)
	assert.True(t, out.records[0].Discontinued)
	assert.Nil(t, out.records[0].Specs)
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t, baseURL+"/arama?q=VOE+11102474", SearchURL(" VOE 11102474 "))
}

func TestTargetCopiesDefaults(t *testing.T) {
	target := Target([]string{"https://www.srp.com.tr/arama?q=1"})
	assert.Len(t, target.Seeds, 1)
	assert.Len(t, SRPTarget.Seeds, 4)
	assert.Equal(t, "srp_scrape", target.Name)
}
