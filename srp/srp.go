// Package srp spiders the SRP (srp.com.tr) heavy equipment parts catalog.
package srp

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/heavyparts/parts_site_builder/spiderdata"
)

const baseURL = "https://www.srp.com.tr"

// SRPTarget is the configuration structure for spidering the SRP website
var SRPTarget = spiderdata.SpiderTarget{
	Name: partcatalog.OriginSRP,
	Seeds: []string{
		baseURL + "/urunler/volvo",
		baseURL + "/urunler/scania",
		baseURL + "/urunler/komatsu",
		baseURL + "/urunler/caterpillar",
	},
	ParsePageFunc: ParseSRPPage,
	RateLimitMarkers: []string{
		"too many requests",
		"çok fazla istek",
	},
}

// Target returns a copy of SRPTarget starting from the given seeds (or the default ones)
func Target(seeds []string) *spiderdata.SpiderTarget {
	target := SRPTarget
	if len(seeds) > 0 {
		target.Seeds = seeds
	}
	return &target
}

// SearchURL is the site search page for a part number.  Seeding with these lets us
// look up a list of known part numbers instead of walking the whole catalog.
func SearchURL(partNumber string) string {
	return baseURL + "/arama?q=" + url.QueryEscape(strings.TrimSpace(partNumber))
}

// ParseSRPPage figures out what kind of page we have and processes it
func ParseSRPPage(ctx *spiderdata.Context, doc *goquery.Document) {
	crumbs := getBreadCrumbs(doc.Find("ol.breadcrumb,ul.breadcrumb").First())

	if product := doc.Find("div.product-detail").First(); product.Length() > 0 {
		processProduct(ctx, crumbs, product)
		return
	}

	breadcrumbs := strings.Join(crumbs, " > ")
	if breadcrumbs == "" {
		breadcrumbs = ctx.Breadcrumb()
	}
	found := processProductList(ctx, breadcrumbs, doc.Find("div.product-list,ul.search-results"))
	processSubCategories(ctx, breadcrumbs, doc.Find("ul.category-list"))
	processPagination(ctx, breadcrumbs, doc.Find("ul.pagination"))
	if !found {
		ctx.G.Log.Debug().Str("url", ctx.PageURL()).Msg("no products on page")
	}
}

// getBreadCrumbs returns the names in the breadcrumb trail, skipping the home link
func getBreadCrumbs(bc *goquery.Selection) (result []string) {
	bc.Find("li").Each(func(i int, li *goquery.Selection) {
		name := strings.Join(strings.Fields(li.Text()), " ")
		if name == "" || (i == 0 && (strings.EqualFold(name, "Anasayfa") || strings.EqualFold(name, "Home"))) {
			return
		}
		result = append(result, name)
	})
	return
}

func processProductList(ctx *spiderdata.Context, breadcrumbs string, list *goquery.Selection) (found bool) {
	list.Find("a.product-link").Each(func(i int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		name, hasTitle := a.Attr("title")
		if !hasTitle {
			name = a.Text()
		}
		found = true
		spiderdata.EnqueURL(ctx, href, spiderdata.MakeBreadCrumb(breadcrumbs, name))
	})
	return
}

func processSubCategories(ctx *spiderdata.Context, breadcrumbs string, list *goquery.Selection) {
	list.Find("li a[href]").Each(func(i int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		spiderdata.EnqueURL(ctx, href, spiderdata.MakeBreadCrumb(breadcrumbs, a.Text()))
	})
}

func processPagination(ctx *spiderdata.Context, breadcrumbs string, pagination *goquery.Selection) {
	pagination.Find("a[href]").Each(func(i int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		// Paging keeps the same trail as the first page
		spiderdata.EnqueURL(ctx, href, breadcrumbs)
	})
}

// processProduct pulls everything we want off a single product page.
// A typical one looks like this:
//
//	<div class="product-detail">
//	  <h1 class="product-title">Şanzıman Dişli Seti</h1>
//	  <div class="product-brand">VOLVO</div>
//	  <div class="product-code">Parça No: 11102474</div>
//	  <div class="product-description">...</div>
//	  <table class="product-specs"><tr><th>Ağırlık</th><td>4,2 kg</td></tr></table>
//	  <ul class="oem-numbers"><li>VOE 11102474</li></ul>
//	  <ul class="compatible-models"><li>L120E</li></ul>
//	</div>
func processProduct(ctx *spiderdata.Context, crumbs []string, product *goquery.Selection) {
	name := cleanText(product.Find("h1.product-title,h1").First().Text())
	rec := spiderdata.Record{
		PartName:    name,
		Brand:       cleanText(product.Find(".product-brand").First().Text()),
		PartNumber:  labelValue(product.Find(".product-code").First().Text()),
		Description: cleanText(product.Find(".product-description").First().Text()),
		Specs:       map[string]string{},
	}

	// The trail on a product page ends with the product itself
	if n := len(crumbs); n > 0 && strings.EqualFold(crumbs[n-1], name) {
		crumbs = crumbs[:n-1]
	}
	if len(crumbs) > 0 {
		rec.Category = crumbs[len(crumbs)-1]
		rec.Breadcrumb = strings.Join(crumbs, " > ")
	}

	product.Find("table.product-specs tr").Each(func(i int, tr *goquery.Selection) {
		key := cleanText(tr.Find("th").First().Text())
		value := cleanText(tr.Find("td").First().Text())
		if key == "" || value == "" {
			return
		}
		switch strings.ToLower(key) {
		case "marka", "brand":
			if rec.Brand == "" {
				rec.Brand = value
			}
		case "parça no", "part number":
			if rec.PartNumber == "" {
				rec.PartNumber = value
			}
		default:
			rec.Specs[key] = value
		}
	})
	product.Find("ul.oem-numbers li").Each(func(i int, li *goquery.Selection) {
		if oem := cleanText(li.Text()); oem != "" {
			rec.OEMNumbers = append(rec.OEMNumbers, oem)
		}
	})
	product.Find("ul.compatible-models li").Each(func(i int, li *goquery.Selection) {
		if model := cleanText(li.Text()); model != "" {
			rec.CompatibleModels = append(rec.CompatibleModels, model)
		}
	})

	if src, ok := product.Find("img.product-image").First().Attr("src"); ok {
		if resolved, ok := ctx.Resolve(src); ok {
			rec.Image = resolved
		}
	}
	stock := strings.ToLower(product.Find(".stock-status").Text())
	rec.Discontinued = strings.Contains(stock, "üretimi durdu") || strings.Contains(stock, "discontinued")

	if len(rec.Specs) == 0 {
		rec.Specs = nil
	}
	spiderdata.OutputRecord(ctx, rec)
}

// labelValue strips a "Label: " prefix
func labelValue(text string) string {
	text = cleanText(text)
	if pos := strings.Index(text, ":"); pos >= 0 {
		text = strings.TrimSpace(text[pos+1:])
	}
	return text
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(text, "\u00A0", " ")), " ")
}
