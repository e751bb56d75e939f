package render

import (
	"bytes"
	"encoding/json"
	"html/template"
)

// PageOptions configure the HTML shell.
type PageOptions struct {
	Title    string
	Width    float64
	Height   float64
	LoginURL string
	State    any // initial filter view, embedded as JSON
}

var pageTmpl = template.Must(template.New("page").Parse(pageTemplate))

// Page renders the HTML shell. The page fetches /v1/frame.svg repeatedly and
// forwards pointer input to /v1/pointer.
func Page(opt PageOptions) ([]byte, error) {
	if opt.Title == "" {
		opt.Title = "Curriculum Graph"
	}
	stateJSON, err := json.Marshal(opt.State)
	if err != nil {
		return nil, err
	}
	data := struct {
		Title     string
		Width     float64
		Height    float64
		LoginURL  string
		StateJSON template.JS
	}{
		Title:     opt.Title,
		Width:     opt.Width,
		Height:    opt.Height,
		LoginURL:  opt.LoginURL,
		StateJSON: template.JS(stateJSON),
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: system-ui, sans-serif;
            background: #0b0d14;
            color: #c7d0e0;
        }
        #filters {
            display: flex;
            gap: 8px;
            padding: 10px 12px;
            align-items: center;
            flex-wrap: wrap;
        }
        select, button {
            background: #151926;
            color: #e5e7eb;
            border: 1px solid #2b3147;
            border-radius: 6px;
            padding: 4px 8px;
        }
        select:disabled { opacity: 0.4; }
        .grade.active { background: #4f46e5; }
        #canvas { display: block; cursor: grab; user-select: none; }
    </style>
</head>
<body>
    <div id="filters">
        <select id="subject"></select>
        <select id="topic"></select>
        <select id="group"></select>
        <select id="subgroup"></select>
        <span id="grades"></span>
        <button id="reset">Reset</button>
        <button id="fit">Fit</button>
    </div>
    <div id="canvas" style="width: {{.Width}}px; height: {{.Height}}px"></div>
    <script>
    (function() {
        var state = {{.StateJSON}};
        var loginURL = "{{.LoginURL}}";
        var canvas = document.getElementById('canvas');
        var levels = ['topic', 'group', 'subgroup'];
        var lists = { topic: 'topics', group: 'groups', subgroup: 'subgroups' };

        function call(method, path, body) {
            return fetch(path, {
                method: method,
                headers: { 'Content-Type': 'application/json' },
                body: body ? JSON.stringify(body) : undefined
            }).then(function(r) {
                if (r.status === 401) { window.location = loginURL; }
                return r.json();
            });
        }

        function fill(id, entries, selected, enabled) {
            var el = document.getElementById(id);
            el.innerHTML = '';
            var blank = document.createElement('option');
            blank.value = '';
            blank.textContent = '—';
            el.appendChild(blank);
            (entries || []).forEach(function(e) {
                var o = document.createElement('option');
                o.value = e.slug;
                o.textContent = e.label;
                o.selected = e.slug === selected;
                el.appendChild(o);
            });
            el.disabled = !enabled;
        }

        function draw(view) {
            state = view;
            var s = view.state;
            fill('subject', (view.subjects || []).map(function(x) {
                return { slug: x.slug, label: x.slug };
            }), s.subject, true);
            fill('topic', view.topics, s.topic, !!s.subject);
            fill('group', view.groups, s.group, view.can_select_group);
            fill('subgroup', view.subgroups, s.subgroup, view.can_select_subgroup);
            var grades = document.getElementById('grades');
            grades.innerHTML = '';
            for (var g = 1; g <= 12; g++) {
                var b = document.createElement('button');
                b.textContent = g;
                b.className = 'grade' + ((s.grades || []).indexOf(g) >= 0 ? ' active' : '');
                b.onclick = (function(n) {
                    return function() { call('POST', '/v1/filters/grades/' + n).then(draw); };
                })(g);
                grades.appendChild(b);
            }
        }

        document.getElementById('subject').onchange = function(e) {
            call('POST', '/v1/filters/subject', { slug: e.target.value }).then(draw);
        };
        levels.forEach(function(l) {
            document.getElementById(l).onchange = function(e) {
                call('POST', '/v1/filters/' + l, { slug: e.target.value }).then(draw);
            };
        });
        document.getElementById('reset').onclick = function() {
            call('POST', '/v1/filters/reset').then(draw);
        };
        document.getElementById('fit').onclick = function() {
            call('POST', '/v1/viewport/fit');
        };

        function pointer(kind, ev) {
            var r = canvas.getBoundingClientRect();
            call('POST', '/v1/pointer', {
                kind: kind,
                x: ev.clientX - r.left,
                y: ev.clientY - r.top,
                delta_y: ev.deltaY || 0
            });
        }
        canvas.addEventListener('mousemove', function(e) { pointer('move', e); });
        canvas.addEventListener('mousedown', function(e) { pointer('down', e); });
        canvas.addEventListener('mouseup', function(e) { pointer('up', e); });
        canvas.addEventListener('mouseleave', function(e) { pointer('leave', e); });
        canvas.addEventListener('wheel', function(e) { e.preventDefault(); pointer('wheel', e); }, { passive: false });

        function frame() {
            fetch('/v1/frame.svg').then(function(r) { return r.text(); }).then(function(text) {
                canvas.innerHTML = text;
                setTimeout(frame, 50);
            }, function() { setTimeout(frame, 1000); });
        }
        function poll() {
            call('GET', '/v1/state').then(draw);
            setTimeout(poll, 1000);
        }

        draw(state);
        poll();
        frame();
    })();
    </script>
</body>
</html>
`
