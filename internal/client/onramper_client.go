package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	gocache "github.com/patrickmn/go-cache"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"portfolio_aggregator/internal/app/port"
	"portfolio_aggregator/internal/domain/entity"
	"portfolio_aggregator/internal/pkg/metrics"
	"portfolio_aggregator/internal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	onRamperProvider  = "onramper"
	assetsCacheKey    = "onramper:assets"
	defaultAssetsTTL  = 10 * time.Minute
	defaultReqTimeout = 10 * time.Second
)

// OnRamperConfig configures the OnRamper gateway client.
type OnRamperConfig struct {
	APIURL    string
	WidgetURL string
	APIKey    string
	Timeout   time.Duration
	AssetsTTL time.Duration
}

// OnRamperClient implements port.FiatRampProvider against the OnRamper API.
type OnRamperClient struct {
	client    *fasthttp.Client
	apiURL    string
	widgetURL string
	apiKey    string
	timeout   time.Duration
	cache     *gocache.Cache
	logger    *zap.Logger
}

var _ port.FiatRampProvider = (*OnRamperClient)(nil)

// NewOnRamperClient creates a new OnRamper client.
func NewOnRamperClient(cfg OnRamperConfig, logger *zap.Logger) *OnRamperClient {
	apiURL := cfg.APIURL
	if apiURL != "" && !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultReqTimeout
	}
	ttl := cfg.AssetsTTL
	if ttl <= 0 {
		ttl = defaultAssetsTTL
	}
	return &OnRamperClient{
		client:    &fasthttp.Client{},
		apiURL:    apiURL,
		widgetURL: cfg.WidgetURL,
		apiKey:    cfg.APIKey,
		timeout:   timeout,
		cache:     gocache.New(ttl, 2*ttl),
		logger:    logger.Named("OnRamperClient"),
	}
}

// GetAssets lists the assets purchasable through any OnRamper gateway. Fetch
// or decode failures are logged and yield an empty list.
func (c *OnRamperClient) GetAssets(ctx context.Context) []entity.FiatRampAsset {
	if cached, ok := c.cache.Get(assetsCacheKey); ok {
		return cached.([]entity.FiatRampAsset)
	}

	resp, err := c.fetchGateways(ctx)
	if err != nil {
		metrics.FiatRampRequests.WithLabelValues(onRamperProvider, "error").Inc()
		c.logger.Error("Failed to fetch assets", zap.Error(err))
		return []entity.FiatRampAsset{}
	}
	metrics.FiatRampRequests.WithLabelValues(onRamperProvider, "ok").Inc()

	assets := convertGatewaysToFiatRampAssets(resp, c.logger)
	if len(assets) > 0 {
		c.cache.SetDefault(assetsCacheKey, assets)
	}
	return assets
}

func (c *OnRamperClient) fetchGateways(ctx context.Context) (*OnRamperGatewaysResponse, error) {
	requestURL := c.apiURL + "gateways?includeIcons=true"
	c.logger.Debug("Requesting gateways from OnRamper", zap.String("url", requestURL))

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAuthorization, "Basic "+c.apiKey)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, fmt.Errorf("request %s: %w: %w", requestURL, entity.ErrTransient, err)
		}
	} else if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
		return nil, fmt.Errorf("request %s: %w: %w", requestURL, entity.ErrTransient, err)
	}

	rawBody := resp.Body()
	if resp.StatusCode() != fasthttp.StatusOK {
		c.logger.Error("OnRamper API request failed",
			zap.String("url", requestURL),
			zap.Int("statusCode", resp.StatusCode()),
			zap.ByteString("responseBody", rawBody),
		)
		return nil, fmt.Errorf("OnRamper API request to %s failed with status %d: %w", requestURL, resp.StatusCode(), entity.ErrTransient)
	}

	var out OnRamperGatewaysResponse
	if err := json.Unmarshal(rawBody, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OnRamper gateways response: %w", err)
	}
	return &out, nil
}

func convertGatewaysToFiatRampAssets(resp *OnRamperGatewaysResponse, logger *zap.Logger) []entity.FiatRampAsset {
	all := make([]entity.FiatRampAsset, 0)
	for _, gateway := range resp.Gateways {
		for _, currency := range gateway.CryptoCurrencies {
			assetID, ok := OnRamperTokenIDToAssetID(currency.Code)
			if !ok {
				continue
			}
			icon, ok := resp.Icons[currency.Code]
			if !ok || icon.Icon == "" {
				logger.Debug("Skipping currency without icon", zap.String("code", currency.Code), zap.String("gateway", gateway.Identifier))
				continue
			}
			all = append(all, entity.FiatRampAsset{
				Name:           currency.DisplayName,
				AssetID:        assetID,
				Symbol:         currency.Code,
				ImageURL:       icon.Icon,
				FiatRampCoinID: currency.ID,
			})
		}
	}
	return utils.UniqBy(all, func(a entity.FiatRampAsset) entity.AssetID { return a.AssetID })
}

// CreateURL builds the hosted widget URL preselecting assetID and locking the
// receiving wallet to address.
func (c *OnRamperClient) CreateURL(assetID entity.AssetID, address, currentURL string) (string, error) {
	codes, ok := AssetIDToOnRamperTokenList(assetID)
	if !ok {
		return "", fmt.Errorf("asset %s not supported by OnRamper: %w", assetID, entity.ErrUnsupportedAsset)
	}
	return buildOnRamperURL(c.widgetURL, c.apiKey, codes, address, currentURL), nil
}

// buildOnRamperURL preselects the first code and restricts the widget to
// codes, with the receiving wallet locked to address.
func buildOnRamperURL(widgetURL, apiKey string, codes []string, address, currentURL string) string {
	defaultCrypto := codes[0]

	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("apiKey", apiKey)
	args.Set("defaultCrypto", defaultCrypto)
	args.Set("onlyCryptos", strings.Join(codes, ","))
	args.Set("wallets", defaultCrypto+":"+address)
	args.Set("isAddressEditable", "false")
	args.Set("supportSell", "false")
	args.Set("darkMode", "true")
	args.Set("redirectURL", currentURL)

	return widgetURL + "?" + args.String()
}
