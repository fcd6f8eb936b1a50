// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	StagingRootNotWritableId Id = iota + 1
	InterpreterNotFoundId
	PostconditionClassMissingId
	ContainerNotRunningId
	SnapNotInstalledId
	DjangoProjectNotFoundId
	ResultNotReportedId
	RepairDidNotHoldId
	ConfigLoadFailedId
	UnknownRunnerId
)

type (
	// Id identifies a catalog entry.
	Id int

	// MarkdownMsg is Markdown guidance text.
	MarkdownMsg string

	// HttpLink is a documentation URL.
	HttpLink string

	// Issue is one catalog entry: Markdown guidance plus related links.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// Render renders the guidance for a terminal using the given glamour style
// ("auto", "dark", "light", "notty" or a style file path).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	stagingRootNotWritableIssue = &Issue{
		id: StagingRootNotWritableId,
		mdMsg: `
# The staging directory could not be created

postcond writes the woven postcondition script into a fresh directory under
the staging root before it starts the target runtime. Nothing was executed.

## Things you can try
- Check that the staging root exists and is writable by the remote user:
~~~
$ postcond config show --format json
$ ls -ld /tmp
~~~
- Point the staging root somewhere writable:
~~~cue
staging_root: "/var/tmp"
~~~
- For the container and snap runners the root lives inside the target's
  filesystem; postcond usually needs to run as root (Ansible ` + "`become: true`" + `).`,
	}

	interpreterNotFoundIssue = &Issue{
		id: InterpreterNotFoundId,
		mdMsg: `
# The target runtime could not be started

The runner's launch command was not found or could not be executed.

## Things you can try
- Check ` + "`python.interpreter`" + ` (or ` + "`container.interpreter`" + `, ` + "`snap.interpreter`" + `) in your config
- Make sure the binary is on the remote user's PATH
- For the container runner, check that ` + "`docker`" + ` or ` + "`podman`" + ` is installed`,
	}

	postconditionClassMissingIssue = &Issue{
		id: PostconditionClassMissingId,
		mdMsg: `
# No postcondition class in the snippet

The snippet must define a class deriving from ` + "`PostconditionBase`" + `:

~~~python
from postcond_runtime import Postcondition as PostconditionBase

class Postcondition(PostconditionBase):
    def holds(self):
        ...

    def enforce(self):
        ...
~~~

Pass ` + "`--class NAME`" + ` when the snippet defines several candidates.`,
	}

	containerNotRunningIssue = &Issue{
		id: ContainerNotRunningId,
		mdMsg: `
# The target container is not running

The container runner stages files through ` + "`/proc/<pid>/root`" + ` of the
container's init process, so the container must be up.

## Things you can try
~~~
$ docker ps --filter name=<container>
$ docker start <container>
~~~`,
	}

	snapNotInstalledIssue = &Issue{
		id: SnapNotInstalledId,
		mdMsg: `
# The snap is not installed

## Things you can try
~~~
$ snap list <name>
~~~
- Check ` + "`snap.name`" + ` and ` + "`snap.app`" + ` in your config`,
	}

	djangoProjectNotFoundIssue = &Issue{
		id: DjangoProjectNotFoundId,
		mdMsg: `
# manage.py was not found

The Django runner starts ` + "`python manage.py shell`" + ` from
` + "`django.project_dir`" + `.

## Things you can try
- Set ` + "`django.project_dir`" + ` to the directory containing manage.py
- Set ` + "`django.manage_py`" + ` if the script has another name`,
	}

	resultNotReportedIssue = &Issue{
		id: ResultNotReportedId,
		mdMsg: `
# The target runtime exited without reporting a result

The woven script prints one result line before exiting. It did not, which
usually means the interpreter crashed while loading the framework or the
snippet's imports.

## Things you can try
- Look at the ` + "`stderr`" + ` field of the result
- Keep the staged files and run the script by hand:
~~~
$ POSTCOND_KEEP_REMOTE_FILES=1 postcond run ...
~~~`,
	}

	repairDidNotHoldIssue = &Issue{
		id: RepairDidNotHoldId,
		mdMsg: `
# enforce() did not make the postcondition hold

` + "`enforce()`" + ` returned normally, but ` + "`holds()`" + ` still reports
false afterwards. Running the task again will not converge.

## Things you can try
- Check that ` + "`enforce()`" + ` commits its changes (e.g. database transactions)
- Check that ` + "`holds()`" + ` does not read stale cached state`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# The configuration could not be loaded

## Things you can try
- Validate the CUE syntax of your config file
- Compare with the defaults:
~~~
$ postcond config show
~~~`,
	}

	unknownRunnerIssue = &Issue{
		id: UnknownRunnerId,
		mdMsg: `
# Unknown runner

Available runners: ` + "`python`, `django`, `container`, `snap`" + `.

~~~cue
default_runner: "django"
~~~`,
	}

	issues = map[Id]*Issue{
		stagingRootNotWritableIssue.Id():    stagingRootNotWritableIssue,
		interpreterNotFoundIssue.Id():       interpreterNotFoundIssue,
		postconditionClassMissingIssue.Id(): postconditionClassMissingIssue,
		containerNotRunningIssue.Id():       containerNotRunningIssue,
		snapNotInstalledIssue.Id():          snapNotInstalledIssue,
		djangoProjectNotFoundIssue.Id():     djangoProjectNotFoundIssue,
		resultNotReportedIssue.Id():         resultNotReportedIssue,
		repairDidNotHoldIssue.Id():          repairDidNotHoldIssue,
		configLoadFailedIssue.Id():          configLoadFailedIssue,
		unknownRunnerIssue.Id():             unknownRunnerIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	values := maps.Values(issues)
	sort.Slice(values, func(a, b int) bool { return values[a].id < values[b].id })
	return values
}

// Get returns the catalog entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
