package container_test

import (
	"strings"
	"testing"

	"github.com/plamolinux/pkgbuild/pkg/container"
)

const baseConfig = `lxc.uts.name = pkgbuild_x86
lxc.rootfs.path = dir:/var/lib/lxc/pkgbuild_x86/rootfs
lxc.network.type = veth
lxc.network.link = lxcbr0
lxc.network.flags = up
`

func TestCustomizeConfig_DisableNetwork(t *testing.T) {
	out := container.CustomizeConfig(baseConfig, "/home/builder", true)

	for _, line := range []string{
		"# lxc.network.type = veth",
		"# lxc.network.link = lxcbr0",
		"# lxc.network.flags = up",
		"lxc.network.type = none",
		"lxc.mount.entry = /home/builder/.gnupg root/.gnupg none bind 0 0",
		"lxc.mount.entry = /etc/resolv.conf etc/resolv.conf none bind 0 0",
	} {
		if !strings.Contains(out, line+"\n") {
			t.Errorf("expected line %q in:\n%s", line, out)
		}
	}
	if !strings.Contains(out, "\nlxc.uts.name = pkgbuild_x86\n") && !strings.HasPrefix(out, "lxc.uts.name") {
		t.Error("unrelated keys must be kept")
	}
	if strings.Contains(out, "# lxc.rootfs.path") {
		t.Error("rootfs must not be commented out")
	}
}

func TestCustomizeConfig_KeepNetwork(t *testing.T) {
	out := container.CustomizeConfig(baseConfig, "/root", false)

	if strings.Contains(out, "# lxc.network") {
		t.Error("network keys must be kept")
	}
	if strings.Contains(out, "lxc.network.type = none") {
		t.Error("network type must not be overridden")
	}
	if !strings.Contains(out, "lxc.mount.entry = /root/.gnupg root/.gnupg none bind 0 0") {
		t.Error("gnupg mount missing")
	}
}

func TestCustomizeConfig_NoTrailingNewline(t *testing.T) {
	out := container.CustomizeConfig("lxc.uts.name = x", "/root", true)
	if !strings.HasPrefix(out, "lxc.uts.name = x\n") {
		t.Errorf("unexpected output %q", out)
	}
}

const modernConfig = `lxc.uts.name = pkgbuild_x86_64
lxc.net.0.type = veth
lxc.net.0.link = lxcbr0
lxc.net.0.flags = up
`

func TestCustomizeConfig_ModernNetworkKeys(t *testing.T) {
	out := container.CustomizeConfig(modernConfig, "/root", true)

	for _, line := range []string{
		"# lxc.net.0.type = veth",
		"# lxc.net.0.link = lxcbr0",
		"lxc.net.0.type = none",
	} {
		if !strings.Contains(out, line+"\n") {
			t.Errorf("expected line %q in:\n%s", line, out)
		}
	}
	if strings.Contains(out, "lxc.network.") {
		t.Errorf("legacy network keys must not be mixed into:\n%s", out)
	}
}
