package kubeapi

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"sigs.k8s.io/yaml"
)

// kubeconfigDocument mirrors the on-disk kubeconfig schema (§6): a named
// current context plus arrays of contexts/clusters/users keyed by name.
type kubeconfigDocument struct {
	CurrentContext string              `json:"current-context"`
	Contexts       []namedContext      `json:"contexts"`
	Clusters       []namedCluster      `json:"clusters"`
	Users          []namedUser         `json:"users"`
}

type namedContext struct {
	Name    string      `json:"name"`
	Context contextSpec `json:"context"`
}

type contextSpec struct {
	Cluster   string `json:"cluster"`
	User      string `json:"user"`
	Namespace string `json:"namespace"`
}

type namedCluster struct {
	Name    string      `json:"name"`
	Cluster clusterSpec `json:"cluster"`
}

type clusterSpec struct {
	Server                   string `json:"server"`
	CertificateAuthority     string `json:"certificate-authority"`
	CertificateAuthorityData string `json:"certificate-authority-data"`
	InsecureSkipTLSVerify    bool   `json:"insecure-skip-tls-verify"`
	TLSServerName            string `json:"tls-server-name"`
	ProxyURL                 string `json:"proxy-url"`
}

type namedUser struct {
	Name string   `json:"name"`
	User userSpec `json:"user"`
}

type userSpec struct {
	Username              string     `json:"username"`
	Password              string     `json:"password"`
	Token                 string     `json:"token"`
	TokenFile             string     `json:"tokenFile"`
	ClientCertificate     string     `json:"client-certificate"`
	ClientCertificateData string     `json:"client-certificate-data"`
	ClientKey             string     `json:"client-key"`
	ClientKeyData         string     `json:"client-key-data"`
	Exec                  *execSpec  `json:"exec"`
}

type execSpec struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// ExecCredential is the JSON status an exec credential plugin writes to
// stdout (§6). Only the fields this module consumes are modeled.
type ExecCredential struct {
	Status struct {
		Token                 string `json:"token"`
		ExpirationTimestamp   string `json:"expirationTimestamp"`
		ClientCertificateData string `json:"clientCertificateData"`
		ClientKeyData         string `json:"clientKeyData"`
	} `json:"status"`
}

const (
	inClusterHost       = "https://kubernetes.default.svc"
	serviceAccountDir   = "/var/run/secrets/kubernetes.io/serviceaccount"
)

// LoadConfig resolves a ClientConfig using the standard precedence (§4.B):
// the KUBECONFIG env var, then $HOME/.kube/config, then the in-cluster
// service-account mount. The first source that parses wins.
func LoadConfig(contextName string) (*ClientConfig, error) {
	var firstErr error
	if path := os.Getenv("KUBECONFIG"); path != "" {
		cfg, err := LoadConfigFromFile(path, contextName)
		if err == nil {
			return cfg, nil
		}
		firstErr = err
	}
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".kube", "config")
		if _, statErr := os.Stat(path); statErr == nil {
			cfg, err := LoadConfigFromFile(path, contextName)
			if err == nil {
				return cfg, nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	cfg, err := LoadInClusterConfig()
	if err != nil && firstErr != nil {
		return nil, firstErr
	}
	return cfg, err
}

// LoadConfigFromFile parses the kubeconfig YAML document at path and
// resolves contextName (or the document's current-context, if empty).
func LoadConfigFromFile(path, contextName string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kubeapi: read kubeconfig: %w", err)
	}
	var doc kubeconfigDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("kubeapi: parse kubeconfig: %w", err)
	}
	if contextName == "" {
		contextName = doc.CurrentContext
	}
	return resolveContext(&doc, contextName, filepath.Dir(path))
}

func resolveContext(doc *kubeconfigDocument, contextName, baseDir string) (*ClientConfig, error) {
	ctx, ok := findContext(doc, contextName)
	if !ok {
		return nil, fmt.Errorf("kubeapi: context %q not found in kubeconfig", contextName)
	}
	cluster, ok := findCluster(doc, ctx.Cluster)
	if !ok {
		return nil, fmt.Errorf("kubeapi: cluster %q not found in kubeconfig", ctx.Cluster)
	}
	user, _ := findUser(doc, ctx.User)

	namespace := ctx.Namespace
	if namespace == "" {
		namespace = "default"
	}

	auth, err := resolveAuthentication(user)
	if err != nil {
		return nil, err
	}

	trustRoots, hasCA, err := resolveTrustRoots(cluster, baseDir)
	if err != nil {
		return nil, err
	}

	insecure := cluster.InsecureSkipTLSVerify
	if !hasCA && !insecure {
		// §4.B: default true when unset and no CA is present.
		insecure = true
	}

	var proxyURL *url.URL
	if cluster.ProxyURL != "" {
		proxyURL, err = url.Parse(cluster.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("kubeapi: parse proxy-url: %w", err)
		}
	}

	return &ClientConfig{
		MasterURL:             cluster.Server,
		Namespace:             namespace,
		Authentication:        auth,
		TrustRoots:            trustRoots,
		InsecureSkipTLSVerify: insecure,
		Timeout:               30 * time.Second,
		ProxyURL:              proxyURL,
	}, nil
}

func findContext(doc *kubeconfigDocument, name string) (contextSpec, bool) {
	for _, c := range doc.Contexts {
		if c.Name == name {
			return c.Context, true
		}
	}
	return contextSpec{}, false
}

func findCluster(doc *kubeconfigDocument, name string) (clusterSpec, bool) {
	for _, c := range doc.Clusters {
		if c.Name == name {
			return c.Cluster, true
		}
	}
	return clusterSpec{}, false
}

func findUser(doc *kubeconfigDocument, name string) (userSpec, bool) {
	for _, u := range doc.Users {
		if u.Name == name {
			return u.User, true
		}
	}
	return userSpec{}, false
}

// resolveAuthentication tries each credential form in the priority order
// §4.B lists: basic, inline bearer, token file, client-cert pair, exec
// plugin.
func resolveAuthentication(user userSpec) (Authentication, error) {
	if user.Username != "" && user.Password != "" {
		return BasicAuth{Username: user.Username, Password: user.Password}, nil
	}
	if user.Token != "" {
		return BearerAuth{Token: user.Token}, nil
	}
	if user.TokenFile != "" {
		data, err := os.ReadFile(user.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("kubeapi: read token file: %w", err)
		}
		return BearerAuth{Token: strings.TrimSpace(string(data))}, nil
	}
	if user.ClientCertificate != "" || user.ClientCertificateData != "" {
		cert, err := loadX509Pair(user)
		if err != nil {
			return nil, err
		}
		return X509Auth{Cert: cert}, nil
	}
	if user.Exec != nil {
		return runExecPlugin(*user.Exec)
	}
	return NoAuth{}, nil
}

func loadX509Pair(user userSpec) (tls.Certificate, error) {
	certPEM, err := loadPEM(user.ClientCertificate, user.ClientCertificateData)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("kubeapi: client certificate: %w", err)
	}
	keyPEM, err := loadPEM(user.ClientKey, user.ClientKeyData)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("kubeapi: client key: %w", err)
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("kubeapi: parse client cert/key: %w", err)
	}
	return cert, nil
}

func loadPEM(path, inlineBase64 string) ([]byte, error) {
	if inlineBase64 != "" {
		return base64.StdEncoding.DecodeString(inlineBase64)
	}
	return os.ReadFile(path)
}

// runExecPlugin invokes the configured credential plugin and reads an
// ExecCredential from its stdout. If the host can't spawn processes, the
// exec path is unavailable and this returns an error rather than a
// credential (§4.B).
func runExecPlugin(spec execSpec) (Authentication, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("kubeapi: exec credential plugin: %w", err)
	}
	var cred ExecCredential
	if err := json.Unmarshal(out, &cred); err != nil {
		return nil, fmt.Errorf("kubeapi: decode exec credential: %w", err)
	}
	if cred.Status.Token == "" {
		return nil, fmt.Errorf("kubeapi: exec credential plugin returned no token")
	}
	return BearerAuth{Token: cred.Status.Token}, nil
}

func resolveTrustRoots(cluster clusterSpec, baseDir string) (*x509.CertPool, bool, error) {
	var pem []byte
	switch {
	case cluster.CertificateAuthorityData != "":
		data, err := base64.StdEncoding.DecodeString(cluster.CertificateAuthorityData)
		if err != nil {
			return nil, false, fmt.Errorf("kubeapi: decode certificate-authority-data: %w", err)
		}
		pem = data
	case cluster.CertificateAuthority != "":
		path := cluster.CertificateAuthority
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("kubeapi: read certificate-authority: %w", err)
		}
		pem = data
	default:
		return nil, false, nil
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, false, fmt.Errorf("kubeapi: no certificates found in CA bundle")
	}
	return pool, true, nil
}

// LoadInClusterConfig reads the service-account mount (§6): bearer token,
// default namespace and CA bundle, pointed at the in-cluster API server
// address advertised via KUBERNETES_SERVICE_HOST/PORT.
func LoadInClusterConfig() (*ClientConfig, error) {
	host := os.Getenv("KUBERNETES_SERVICE_HOST")
	port := os.Getenv("KUBERNETES_SERVICE_PORT")
	master := inClusterHost
	if host != "" && port != "" {
		master = "https://" + host + ":" + port
	}

	token, err := os.ReadFile(filepath.Join(serviceAccountDir, "token"))
	if err != nil {
		return nil, fmt.Errorf("kubeapi: read service account token: %w", err)
	}
	namespace, err := os.ReadFile(filepath.Join(serviceAccountDir, "namespace"))
	if err != nil {
		return nil, fmt.Errorf("kubeapi: read service account namespace: %w", err)
	}
	caData, err := os.ReadFile(filepath.Join(serviceAccountDir, "ca.crt"))
	if err != nil {
		return nil, fmt.Errorf("kubeapi: read service account ca.crt: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caData) {
		return nil, fmt.Errorf("kubeapi: no certificates found in service account ca.crt")
	}

	return &ClientConfig{
		MasterURL:      master,
		Namespace:      strings.TrimSpace(string(namespace)),
		Authentication: BearerAuth{Token: strings.TrimSpace(string(token))},
		TrustRoots:     pool,
		Timeout:        30 * time.Second,
	}, nil
}
