package git

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	appcfg "git.home.luguber.info/inful/pkgship/internal/config"
)

// getAuthentication maps an auth configuration to a go-git AuthMethod.
func (c *Client) getAuthentication(authCfg *appcfg.AuthConfig) (transport.AuthMethod, error) {
	switch authCfg.Type {
	case "", "none":
		return nil, nil
	case "token":
		if authCfg.Token == "" {
			return nil, fmt.Errorf("token authentication requires a token")
		}
		// Most git hosting services accept "token" as the username for token auth.
		username := authCfg.Username
		if username == "" {
			username = "token"
		}
		return &http.BasicAuth{Username: username, Password: authCfg.Token}, nil
	case "basic":
		if authCfg.Username == "" || authCfg.Password == "" {
			return nil, fmt.Errorf("basic authentication requires username and password")
		}
		return &http.BasicAuth{Username: authCfg.Username, Password: authCfg.Password}, nil
	case "ssh":
		keyPath := authCfg.KeyPath
		if keyPath == "" {
			keyPath = filepath.Join(os.Getenv("HOME"), ".ssh", "id_rsa")
		}
		publicKeys, err := ssh.NewPublicKeysFromFile("git", keyPath, "")
		if err != nil {
			return nil, fmt.Errorf("load SSH key from %s: %w", keyPath, err)
		}
		return publicKeys, nil
	default:
		return nil, fmt.Errorf("unsupported authentication type: %s", authCfg.Type)
	}
}
