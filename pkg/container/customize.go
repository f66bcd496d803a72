package container

import (
	"path/filepath"
	"strings"
)

// CustomizeConfig rewrites an LXC container config after creation. With
// disableNetwork set, every network key is commented out and the network
// type set to none so the environment shares the host network. The none
// key uses the lxc.net.0 form when the config already does (LXC 3 and
// later), the lxc.network form otherwise. The host
// GnuPG directory and resolver configuration are always bind mounted.
func CustomizeConfig(config, home string, disableNetwork bool) string {
	var b strings.Builder
	modern := false

	for _, line := range strings.SplitAfter(config, "\n") {
		if line == "" {
			continue
		}
		key := strings.TrimSpace(line)
		if strings.HasPrefix(key, "lxc.net.") {
			modern = true
		}
		if disableNetwork && (strings.HasPrefix(key, "lxc.net.") || strings.HasPrefix(key, "lxc.network.")) {
			b.WriteString("# ")
		}
		b.WriteString(line)
	}
	if !strings.HasSuffix(b.String(), "\n") && b.Len() > 0 {
		b.WriteString("\n")
	}

	b.WriteString("\n# pkgbuild\n")
	switch {
	case disableNetwork && modern:
		b.WriteString("lxc.net.0.type = none\n")
	case disableNetwork:
		b.WriteString("lxc.network.type = none\n")
	}
	b.WriteString("lxc.mount.entry = " + filepath.Join(home, ".gnupg") + " root/.gnupg none bind 0 0\n")
	b.WriteString("lxc.mount.entry = /etc/resolv.conf etc/resolv.conf none bind 0 0\n")
	return b.String()
}
