// Package sparepower spiders the SparePower (sparepower.co.za) WooCommerce store.
package sparepower

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/heavyparts/parts_site_builder/partcatalog"
	"github.com/heavyparts/parts_site_builder/spiderdata"
)

const baseURL = "https://sparepower.co.za"

// SparePowerTarget is the configuration structure for spidering the SparePower website
var SparePowerTarget = spiderdata.SpiderTarget{
	Name:          partcatalog.OriginSparePower,
	Seeds:         []string{baseURL + "/shop/"},
	ParsePageFunc: ParseSparePowerPage,
}

// Target returns a copy of SparePowerTarget starting from the given seeds (or the default ones)
func Target(seeds []string) *spiderdata.SpiderTarget {
	target := SparePowerTarget
	if len(seeds) > 0 {
		target.Seeds = seeds
	}
	return &target
}

// SearchURL is the WooCommerce product search for a part number
func SearchURL(partNumber string) string {
	return baseURL + "/?s=" + url.QueryEscape(strings.TrimSpace(partNumber)) + "&post_type=product"
}

// ParseSparePowerPage figures out what kind of page we have and processes it
func ParseSparePowerPage(ctx *spiderdata.Context, doc *goquery.Document) {
	crumbs := getBreadCrumbs(doc.Find("nav.woocommerce-breadcrumb").First())

	if product := doc.Find("div.product.type-product,div[id^=product-]").First(); product.Length() > 0 && product.Find("h1.product_title").Length() > 0 {
		processProduct(ctx, crumbs, product)
		return
	}

	breadcrumbs := strings.Join(crumbs, " > ")
	if breadcrumbs == "" {
		breadcrumbs = ctx.Breadcrumb()
	}
	doc.Find("ul.products li.product").Each(func(i int, li *goquery.Selection) {
		a := li.Find("a.woocommerce-LoopProduct-link,a.woocommerce-loop-product__link").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		name := strings.TrimSpace(li.Find(".woocommerce-loop-product__title").First().Text())
		spiderdata.EnqueURL(ctx, href, spiderdata.MakeBreadCrumb(breadcrumbs, name))
	})
	// Category tiles on the shop page
	doc.Find("ul.products li.product-category a[href]").Each(func(i int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		name := strings.TrimSpace(a.Find(".woocommerce-loop-category__title").Contents().First().Text())
		spiderdata.EnqueURL(ctx, href, spiderdata.MakeBreadCrumb(breadcrumbs, name))
	})
	// WooCommerce paging is /page/N/ so it survives CleanURL
	doc.Find("nav.woocommerce-pagination a.page-numbers[href]").Each(func(i int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		spiderdata.EnqueURL(ctx, href, breadcrumbs)
	})
}

func getBreadCrumbs(nav *goquery.Selection) (result []string) {
	nav.Find("a").Each(func(i int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Text())
		if name == "" || (i == 0 && strings.EqualFold(name, "Home")) {
			return
		}
		result = append(result, name)
	})
	return
}

// processProduct handles the standard WooCommerce single product layout
func processProduct(ctx *spiderdata.Context, crumbs []string, product *goquery.Selection) {
	rec := spiderdata.Record{
		PartName:   strings.TrimSpace(product.Find("h1.product_title").First().Text()),
		PartNumber: strings.TrimSpace(product.Find(".product_meta .sku").First().Text()),
		Specs:      map[string]string{},
	}

	description := product.Find(".woocommerce-product-details__short-description").First().Text()
	if strings.TrimSpace(description) == "" {
		description = product.Find("#tab-description").First().Text()
	}
	rec.Description = strings.Join(strings.Fields(description), " ")

	if len(crumbs) > 0 {
		rec.Category = crumbs[len(crumbs)-1]
		rec.Breadcrumb = strings.Join(crumbs, " > ")
	} else if category := strings.TrimSpace(product.Find(".product_meta .posted_in a").First().Text()); category != "" {
		rec.Category = category
	}

	product.Find("table.woocommerce-product-attributes tr").Each(func(i int, tr *goquery.Selection) {
		key := strings.TrimSpace(tr.Find("th").First().Text())
		value := strings.Join(strings.Fields(tr.Find("td").First().Text()), " ")
		if key == "" || value == "" {
			return
		}
		switch strings.ToLower(key) {
		case "brand", "make", "manufacturer":
			rec.Brand = value
		case "oem number", "oem numbers", "oem part number", "cross reference":
			for _, oem := range strings.Split(value, ",") {
				if oem = strings.TrimSpace(oem); oem != "" {
					rec.OEMNumbers = append(rec.OEMNumbers, oem)
				}
			}
		case "fits", "compatible models", "application":
			for _, model := range strings.Split(value, ",") {
				if model = strings.TrimSpace(model); model != "" {
					rec.CompatibleModels = append(rec.CompatibleModels, model)
				}
			}
		default:
			rec.Specs[key] = value
		}
	})
	if rec.Brand == "" {
		rec.Brand = strings.TrimSpace(product.Find(".product_meta .tagged_as a").First().Text())
	}

	gallery := product.Find(".woocommerce-product-gallery__image a[href]").First()
	if href, ok := gallery.Attr("href"); ok {
		if resolved, ok := ctx.Resolve(href); ok {
			rec.Image = resolved
		}
	}
	rec.Discontinued = product.Find("p.stock.out-of-stock").Length() > 0 &&
		strings.Contains(strings.ToLower(product.Find("p.stock").Text()), "discontinued")

	if len(rec.Specs) == 0 {
		rec.Specs = nil
	}
	spiderdata.OutputRecord(ctx, rec)
}
