package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/productbridge/productbridge/internal/logging"
	"github.com/productbridge/productbridge/internal/models"
	"github.com/productbridge/productbridge/internal/retry"
)

// Namespace holds every metafield written by the app.
const Namespace = "product_bridge"

// Metafield keys, in write order.
const (
	KeySpecs      = "specs"
	KeyHighlights = "highlights"
	KeyIncluded   = "included"
	KeyFeatured   = "featured"
)

const productGIDPrefix = "gid://shopify/Product/"

var numericID = regexp.MustCompile(`^[0-9]+$`)

const metafieldsSetMutation = `mutation SetProductContent($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    metafields { key namespace }
    userErrors { field message code }
  }
}`

const productContentQuery = `query ProductContent($id: ID!) {
  product(id: $id) {
    id
    specs: metafield(namespace: "product_bridge", key: "specs") { value }
    highlights: metafield(namespace: "product_bridge", key: "highlights") { value }
    included: metafield(namespace: "product_bridge", key: "included") { value }
    featured: metafield(namespace: "product_bridge", key: "featured") { value }
  }
}`

// SaveResult describes a successful metafieldsSet call.
type SaveResult struct {
	ProductID string         `json:"productId"`
	Keys      []string       `json:"keys"`
	Counts    map[string]int `json:"counts"`
	Attempts  int            `json:"-"`
}

type metafieldInput struct {
	OwnerID   string `json:"ownerId"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code"`
}

type metafieldsSetData struct {
	MetafieldsSet struct {
		Metafields []struct {
			Key       string `json:"key"`
			Namespace string `json:"namespace"`
		} `json:"metafields"`
		UserErrors []userError `json:"userErrors"`
	} `json:"metafieldsSet"`
}

type metafieldValue struct {
	Value string `json:"value"`
}

type productContentData struct {
	Product *struct {
		ID         string          `json:"id"`
		Specs      *metafieldValue `json:"specs"`
		Highlights *metafieldValue `json:"highlights"`
		Included   *metafieldValue `json:"included"`
		Featured   *metafieldValue `json:"featured"`
	} `json:"product"`
}

// ProductGID accepts a numeric product id or a product GID and returns the GID.
func ProductGID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if numericID.MatchString(id) {
		return productGIDPrefix + id, true
	}
	if rest, ok := strings.CutPrefix(id, productGIDPrefix); ok && numericID.MatchString(rest) {
		return id, true
	}
	return "", false
}

// SaveProductContent writes the four content metafields in one mutation.
func (c *Client) SaveProductContent(ctx context.Context, productID string, content models.ProductContent) (SaveResult, error) {
	gid, ok := ProductGID(productID)
	if !ok {
		return SaveResult{}, models.NewUserError(models.CodeSaveInvalidProduct, "The product id is not valid.").
			WithSuggestion("Open the extractor from a product page in the Shopify admin.").
			WithDetail("productId", productID)
	}

	content = content.WithDefaults()
	fields := []struct {
		key   string
		value any
	}{
		{KeySpecs, content.Specs},
		{KeyHighlights, content.Highlights},
		{KeyIncluded, content.Included},
		{KeyFeatured, content.Featured},
	}

	inputs := make([]metafieldInput, 0, len(fields))
	for _, f := range fields {
		encoded, err := json.Marshal(f.value)
		if err != nil {
			return SaveResult{}, fmt.Errorf("failed to encode %s: %w", f.key, err)
		}
		inputs = append(inputs, metafieldInput{
			OwnerID:   gid,
			Namespace: Namespace,
			Key:       f.key,
			Type:      "json",
			Value:     string(encoded),
		})
	}

	var data metafieldsSetData
	attempts, err := c.execute(ctx, "metafieldsSet", metafieldsSetMutation, map[string]any{"metafields": inputs}, &data)
	if err != nil {
		return SaveResult{}, saveError(err)
	}

	if ue := data.MetafieldsSet.UserErrors; len(ue) > 0 {
		messages := userErrorMessages(ue)
		return SaveResult{}, models.NewUserError(models.CodeSaveShopifyError, "Shopify rejected the content: "+strings.Join(messages, "; ")).
			WithSuggestion("Review the extracted content and try saving again.").
			WithDetail("errors", messages)
	}

	keys := make([]string, 0, len(data.MetafieldsSet.Metafields))
	for _, m := range data.MetafieldsSet.Metafields {
		keys = append(keys, m.Key)
	}

	logging.FromContext(ctx, c.logger).Info("product content saved",
		"product_id", gid,
		"keys", keys,
		"attempts", attempts,
	)

	return SaveResult{
		ProductID: gid,
		Keys:      keys,
		Counts:    content.Counts(),
		Attempts:  attempts,
	}, nil
}

// LoadProductContent reads the content metafields back. Missing metafields
// load as empty fields.
func (c *Client) LoadProductContent(ctx context.Context, productID string) (models.ProductContent, error) {
	gid, ok := ProductGID(productID)
	if !ok {
		return models.ProductContent{}, models.NewUserError(models.CodeLoadInvalidProduct, "The product id is not valid.").
			WithDetail("productId", productID)
	}

	var data productContentData
	if _, err := c.execute(ctx, "productContent", productContentQuery, map[string]any{"id": gid}, &data); err != nil {
		return models.ProductContent{}, loadError(err)
	}

	if data.Product == nil {
		return models.ProductContent{}, models.NewUserError(models.CodeLoadNotFound, "The product was not found in your store.").
			WithDetail("productId", gid)
	}

	obj := map[string]json.RawMessage{}
	for key, field := range map[string]*metafieldValue{
		KeySpecs:      data.Product.Specs,
		KeyHighlights: data.Product.Highlights,
		KeyIncluded:   data.Product.Included,
		KeyFeatured:   data.Product.Featured,
	} {
		if field == nil || !json.Valid([]byte(field.Value)) {
			continue
		}
		obj[key] = json.RawMessage(field.Value)
	}

	content, err := models.NormalizeContent(obj, false)
	if err != nil {
		return models.ProductContent{}, fmt.Errorf("failed to normalize stored content: %w", err)
	}
	return content.WithDefaults(), nil
}

func saveError(err error) *models.UserError {
	var gqlErr *GraphQLError
	if errors.As(err, &gqlErr) {
		return models.NewUserError(models.CodeSaveShopifyError, "Shopify rejected the request: "+strings.Join(gqlErr.Messages, "; ")).
			WithSuggestion("Check the app's access scopes and try again.").
			WithDetail("errors", gqlErr.Messages)
	}
	ue := models.NewUserError(models.CodeSaveShopifyFailed, "Could not save to Shopify: "+err.Error()).
		WithSuggestion(remoteSuggestion(err))
	if status, ok := retry.StatusCode(err); ok {
		ue = ue.WithDetail("status", status)
	}
	return ue
}

func loadError(err error) *models.UserError {
	var gqlErr *GraphQLError
	if errors.As(err, &gqlErr) {
		return models.NewUserError(models.CodeLoadShopifyError, "Shopify rejected the request: "+strings.Join(gqlErr.Messages, "; ")).
			WithDetail("errors", gqlErr.Messages)
	}
	ue := models.NewUserError(models.CodeLoadShopifyFailed, "Could not load content from Shopify: "+err.Error()).
		WithSuggestion(remoteSuggestion(err))
	if status, ok := retry.StatusCode(err); ok {
		ue = ue.WithDetail("status", status)
	}
	return ue
}

func remoteSuggestion(err error) string {
	status, _ := retry.StatusCode(err)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "Check the Shopify access token and the app's metafield scopes."
	case http.StatusTooManyRequests:
		return "Shopify is rate limiting requests. Wait a moment and try again."
	default:
		return "Try again in a moment."
	}
}

func userErrorMessages(errs []userError) []string {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		if len(e.Field) > 0 {
			messages = append(messages, strings.Join(e.Field, ".")+": "+e.Message)
			continue
		}
		messages = append(messages, e.Message)
	}
	return messages
}
