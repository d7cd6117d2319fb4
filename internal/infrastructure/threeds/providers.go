package threeds

import (
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/DanielPopoola/payment-security-core/internal/application"
	"github.com/DanielPopoola/payment-security-core/internal/config"
	"github.com/DanielPopoola/payment-security-core/internal/domain"
)

// NewProviders builds one MPI client per brand that has a directory server URL
// configured. Brands without a URL are left out, which makes 3-D Secure "not
// required" for them. All clients share one HTTP client, presenting the PKCS#12
// certificate when one is configured.
func NewProviders(cfg config.ThreeDSConfig) ([]application.ThreeDSProvider, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	if cfg.P12Path != "" {
		cert, err := loadP12Certificate(cfg.P12Path, cfg.P12Password)
		if err != nil {
			return nil, fmt.Errorf("threeds: %w", err)
		}
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		}
	}

	endpoints := []struct {
		provider domain.ProviderName
		url      string
	}{
		{domain.ProviderVisaSecure, cfg.VisaURL},
		{domain.ProviderMastercardIdentityCheck, cfg.MastercardURL},
		{domain.ProviderAmexSafeKey, cfg.AmexURL},
		{domain.ProviderJSecure, cfg.JCBURL},
		{domain.ProviderDiscoverProtectBuy, cfg.DiscoverURL},
	}

	var providers []application.ThreeDSProvider
	for _, e := range endpoints {
		if e.url == "" {
			continue
		}
		providers = append(providers, NewMPIClient(e.provider, e.url, cfg.MerchantName, httpClient))
	}
	return providers, nil
}
