package scraper

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionHandle(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"/collections/summer-sale":                    "summer-sale",
		"/collections/summer-sale/":                   "summer-sale",
		"/collections/summer-sale?page=2":             "summer-sale",
		"/collections/summer-sale#grid":               "summer-sale",
		"/collections/summer-sale/products/tee":       "summer-sale",
		"https://shop.example/collections/new-in":     "new-in",
		"/collections/all":                            "",
		"/collections/":                               "",
		"/products/tee":                               "",
		"/pages/about":                                "",
	}
	for href, want := range cases {
		assert.Equal(t, want, collectionHandle(href), "href %q", href)
	}
}

func TestSyntheticCollectionIDStableAndNegative(t *testing.T) {
	t.Parallel()

	id := syntheticCollectionID("summer-sale")
	assert.Negative(t, id)
	assert.Equal(t, id, syntheticCollectionID("summer-sale"))
	assert.NotEqual(t, id, syntheticCollectionID("winter-sale"))
}

func TestBestTitlePrefersDedicatedNode(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<a href="/collections/summer-sale">
			<span class="card__heading">Summer Sale</span>
			<span class="price">From $10</span>
		</a>`))
	require.NoError(t, err)

	assert.Equal(t, "Summer Sale", bestTitle(doc.Find("a")))
}

func TestBestTitleFallsBackToAnchorText(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<a href="/collections/new-in"> New In </a>`))
	require.NoError(t, err)

	assert.Equal(t, "New In", bestTitle(doc.Find("a")))
}

func TestTitleFromHandle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Summer Sale", titleFromHandle("summer-sale"))
	assert.Equal(t, "New In", titleFromHandle("new-in"))
}
