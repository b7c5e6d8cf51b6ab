package security

import (
	"context"
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	ggcrremote "github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/sigstore/cosign/v3/pkg/cosign"
	ociremote "github.com/sigstore/cosign/v3/pkg/oci/remote"
	"github.com/sigstore/cosign/v3/pkg/signature"
	"github.com/sigstore/sigstore-go/pkg/root"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// verifyMaxWorkers bounds the signature verification fan-out per image.
const verifyMaxWorkers = 10

// VerifyConfig carries the verification settings for one image check. Either
// PublicKey (static key) or Issuer and Subject (keyless) must be set.
type VerifyConfig struct {
	// PublicKey is the Cosign public key PEM. When set, static-key
	// verification is used and Issuer/Subject are ignored.
	PublicKey string
	// Issuer is the OIDC issuer for keyless verification.
	Issuer string
	// Subject is the OIDC subject (certificate identity) for keyless
	// verification.
	Subject string
	// IgnoreTlog skips Rekor transparency log verification.
	IgnoreTlog bool
	// ImagePullSecrets name docker-config Secrets used to read signatures
	// from private registries.
	ImagePullSecrets []corev1.LocalObjectReference
	// Namespace is where the ImagePullSecrets live.
	Namespace string
}

// ImageVerifier verifies container image signatures using Cosign and pins
// verified images to their digests. A digest-keyed in-memory cache avoids
// re-verifying the same image on every reconcile loop.
type ImageVerifier struct {
	logger logr.Logger
	cache  *verificationCache
	client client.Client

	trustedMu sync.Mutex
	trusted   root.TrustedMaterial
}

// NewImageVerifier creates an ImageVerifier. The client is used to read
// ImagePullSecrets for private registry authentication. trusted may be nil,
// in which case the sigstore trusted root is fetched lazily the first time a
// verification needs it.
func NewImageVerifier(logger logr.Logger, k8sClient client.Client, trusted root.TrustedMaterial) *ImageVerifier {
	return &ImageVerifier{
		logger:  logger,
		cache:   newVerificationCache(),
		client:  k8sClient,
		trusted: trusted,
	}
}

// Verify checks the signature of imageRef and returns its digest reference
// (for example "ghcr.io/gnzsnz/ib-gateway@sha256:abc..."). The digest is
// resolved before verification and the signature is verified against the
// digest, so the returned pin names exactly the bytes that were checked.
func (v *ImageVerifier) Verify(ctx context.Context, imageRef string, config VerifyConfig) (string, error) {
	if config.PublicKey == "" && (config.Issuer == "" || config.Subject == "") {
		return "", fmt.Errorf("either PublicKey OR (Issuer and Subject) must be provided for image verification")
	}

	keychain, err := v.buildKeychain(ctx, config.ImagePullSecrets, config.Namespace)
	if err != nil {
		return "", fmt.Errorf("failed to build keychain for image pull secrets: %w", err)
	}

	digestRef, err := v.resolveDigest(ctx, imageRef, keychain)
	if err != nil {
		return "", fmt.Errorf("failed to resolve digest for %q: %w", imageRef, err)
	}

	key := v.cacheKey(digestRef.String(), config)
	if v.cache.isVerifiedByKey(key) {
		v.logger.V(1).Info("Image verification cache hit", "digest", digestRef.String())
		return digestRef.String(), nil
	}

	v.logger.Info("Verifying image signature",
		"image", imageRef, "digest", digestRef.String(), "keyless", config.PublicKey == "")
	if err := v.verifySignatures(ctx, digestRef, config, keychain); err != nil {
		return "", fmt.Errorf("image verification failed for %q: %w", imageRef, err)
	}

	v.cache.markVerifiedByKey(key)
	v.logger.Info("Image verification succeeded", "image", imageRef, "digest", digestRef.String())
	return digestRef.String(), nil
}

// resolveDigest resolves a tag reference to a digest reference via a registry
// HEAD request. Digest references pass through unchanged.
func (v *ImageVerifier) resolveDigest(ctx context.Context, imageRef string, keychain authn.Keychain) (name.Digest, error) {
	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return name.Digest{}, fmt.Errorf("failed to parse image reference: %w", err)
	}
	if d, ok := ref.(name.Digest); ok {
		return d, nil
	}

	opts := []ggcrremote.Option{ggcrremote.WithContext(ctx)}
	if keychain != nil {
		opts = append(opts, ggcrremote.WithAuthFromKeychain(keychain))
	}
	desc, err := ggcrremote.Head(ref, opts...)
	if err != nil {
		return name.Digest{}, err
	}
	return name.NewDigest(fmt.Sprintf("%s@%s", ref.Context().Name(), desc.Digest.String()))
}

// verifySignatures runs the Cosign check against a digest reference.
func (v *ImageVerifier) verifySignatures(ctx context.Context, digestRef name.Digest, config VerifyConfig, keychain authn.Keychain) error {
	co := &cosign.CheckOpts{
		IgnoreTlog: config.IgnoreTlog,
		MaxWorkers: verifyMaxWorkers,
	}
	if keychain != nil {
		co.RegistryClientOpts = append(co.RegistryClientOpts,
			ociremote.WithRemoteOptions(ggcrremote.WithAuthFromKeychain(keychain)))
	}

	if config.PublicKey != "" {
		verifier, err := signature.LoadPublicKeyRaw([]byte(config.PublicKey), crypto.SHA256)
		if err != nil {
			return fmt.Errorf("failed to create verifier from public key: %w", err)
		}
		co.SigVerifier = verifier
	} else {
		co.Identities = []cosign.Identity{{Issuer: config.Issuer, Subject: config.Subject}}
	}

	// The trusted root carries the Fulcio chain and transparency log keys.
	// Keyless verification always needs it; static-key verification needs it
	// for the Rekor inclusion proof unless the tlog is ignored.
	if config.PublicKey == "" || !config.IgnoreTlog {
		trusted, err := v.trustedMaterial()
		if err != nil {
			return fmt.Errorf("failed to load sigstore trusted root: %w", err)
		}
		co.TrustedMaterial = trusted
	}

	sigs, bundleVerified, err := cosign.VerifyImageSignatures(ctx, digestRef, co)
	if err != nil {
		return fmt.Errorf("image signature verification failed: %w", err)
	}
	if len(sigs) == 0 {
		return fmt.Errorf("no signatures found for image %q", digestRef.String())
	}

	v.logger.V(1).Info("Image verification completed",
		"digest", digestRef.String(),
		"signatures", len(sigs),
		"bundleVerified", bundleVerified,
		"rekorVerified", !config.IgnoreTlog)
	return nil
}

// trustedMaterial returns the configured trusted root, fetching the sigstore
// TUF root on first use. Fetch failures are not cached so a transient TUF
// outage heals on the next reconcile.
func (v *ImageVerifier) trustedMaterial() (root.TrustedMaterial, error) {
	v.trustedMu.Lock()
	defer v.trustedMu.Unlock()

	if v.trusted != nil {
		return v.trusted, nil
	}
	trusted, err := root.FetchTrustedRoot()
	if err != nil {
		return nil, err
	}
	v.trusted = trusted
	return v.trusted, nil
}

// cacheKey derives the cache key for one digest under one verification
// config. Different verification modes never share an entry.
func (v *ImageVerifier) cacheKey(digest string, config VerifyConfig) string {
	if config.PublicKey != "" {
		sum := sha256.Sum256([]byte(config.PublicKey))
		return fmt.Sprintf("%s@key:%x", digest, sum[:8])
	}
	return fmt.Sprintf("%s@oidc:%s|%s", digest, config.Issuer, config.Subject)
}

// buildKeychain constructs a keychain from ImagePullSecrets by reading the
// referenced docker-config Secrets. Returns nil when no secrets are given.
func (v *ImageVerifier) buildKeychain(ctx context.Context, imagePullSecrets []corev1.LocalObjectReference, namespace string) (authn.Keychain, error) {
	if len(imagePullSecrets) == 0 || v.client == nil {
		return nil, nil
	}

	auths := make(map[string]dockerAuthConfig)
	for _, secretRef := range imagePullSecrets {
		secret := &corev1.Secret{}
		if err := v.client.Get(ctx, types.NamespacedName{
			Namespace: namespace,
			Name:      secretRef.Name,
		}, secret); err != nil {
			return nil, fmt.Errorf("failed to get ImagePullSecret %s/%s: %w", namespace, secretRef.Name, err)
		}

		var configKey string
		switch secret.Type {
		case corev1.SecretTypeDockerConfigJson:
			configKey = corev1.DockerConfigJsonKey
		case corev1.SecretTypeDockercfg:
			configKey = corev1.DockerConfigKey
		default:
			return nil, fmt.Errorf("ImagePullSecret %s/%s has invalid type %s, expected %s or %s",
				namespace, secretRef.Name, secret.Type, corev1.SecretTypeDockerConfigJson, corev1.SecretTypeDockercfg)
		}

		data, ok := secret.Data[configKey]
		if !ok {
			return nil, fmt.Errorf("ImagePullSecret %s/%s missing key %s", namespace, secretRef.Name, configKey)
		}

		var parsed struct {
			Auths map[string]dockerAuthConfig `json:"auths"`
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse docker config from ImagePullSecret %s/%s: %w", namespace, secretRef.Name, err)
		}

		// Later secrets override earlier ones for the same registry.
		for registry, auth := range parsed.Auths {
			auths[registry] = auth
		}
	}

	if len(auths) == 0 {
		return nil, nil
	}
	return &dockerConfigKeychain{auths: auths}, nil
}

// dockerAuthConfig is a single docker config auth entry.
type dockerAuthConfig struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Auth     string `json:"auth,omitempty"`
}

// dockerConfigKeychain implements authn.Keychain over docker config auths.
type dockerConfigKeychain struct {
	auths map[string]dockerAuthConfig
}

func (k *dockerConfigKeychain) Resolve(resource authn.Resource) (authn.Authenticator, error) {
	auth, ok := k.auths[resource.RegistryStr()]
	if !ok {
		return authn.Anonymous, nil
	}

	if auth.Username != "" && auth.Password != "" {
		return &authn.Basic{Username: auth.Username, Password: auth.Password}, nil
	}
	if auth.Auth != "" {
		decoded, err := base64.StdEncoding.DecodeString(auth.Auth)
		if err != nil {
			return nil, fmt.Errorf("invalid auth entry for registry %q: %w", resource.RegistryStr(), err)
		}
		username, password, ok := strings.Cut(string(decoded), ":")
		if !ok {
			return nil, fmt.Errorf("invalid auth entry for registry %q: missing separator", resource.RegistryStr())
		}
		return &authn.Basic{Username: username, Password: password}, nil
	}
	return authn.Anonymous, nil
}

// verificationCache is a thread-safe set of verified (digest, config) keys.
type verificationCache struct {
	mu    sync.RWMutex
	cache map[string]bool
}

func newVerificationCache() *verificationCache {
	return &verificationCache{cache: make(map[string]bool)}
}

func (c *verificationCache) isVerifiedByKey(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache[key]
}

func (c *verificationCache) markVerifiedByKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = true
}
