package agents

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// InstallCommand returns the one-line installer for the default version.
func InstallCommand(installBase, token string) string {
	return fmt.Sprintf("curl -fsSL %s/api/agents/install.sh | TOKEN=%s sh", strings.TrimRight(installBase, "/"), token)
}

const overviewMarkdown = "## What is the agent?\n\n" +
	"The agent installs and runs exporters such as `node_exporter` and `mysqld_exporter` " +
	"on a target host or container and registers their scrape targets with the platform, " +
	"so Prometheus starts collecting right away.\n\n" +
	"### Install the default version\n\n" +
	"```sh\n%s\n```\n\n" +
	"To pin a version, prefix the pipe target with `AGENT_VERSION=v0.2`, for example:\n\n" +
	"```sh\n%s\n```\n\n" +
	"Inside the same Docker network, use the backend service name as the host name. " +
	"Docker's DNS resolves it to the current address, so migrations and rebuilds keep working.\n\n" +
	"### Common errors\n\n" +
	"- **No python3:** install Python 3 (`apt-get install -y python3 python3-pip` or `apk add python3 py3-pip`).\n" +
	"- **SSL certificate error:** use the http scheme or configure the container CA certificates.\n" +
	"- **Port conflict on 9100:** edit `agent.yaml` and change the node_exporter port.\n" +
	"- **Cannot write /etc/prometheus/file_sd:** check that the backend shares the file_sd volume with Prometheus.\n"

var (
	mdOnce sync.Once
	md     goldmark.Markdown
)

func markdown() goldmark.Markdown {
	mdOnce.Do(func() {
		md = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(
					highlighting.WithStyle("github"),
				),
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		)
	})
	return md
}

// Overview renders the agent overview tab as HTML.
func Overview(installBase, token string) (template.HTML, error) {
	cmd := InstallCommand(installBase, token)
	pinned := strings.Replace(cmd, "| TOKEN=", "| AGENT_VERSION=v0.2 TOKEN=", 1)

	var buf bytes.Buffer
	if err := markdown().Convert([]byte(fmt.Sprintf(overviewMarkdown, cmd, pinned)), &buf); err != nil {
		return "", fmt.Errorf("rendering agent overview: %w", err)
	}
	// Raw HTML in the source is dropped by the default renderer.
	return template.HTML(buf.String()), nil
}
