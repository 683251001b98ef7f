package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleDashboard(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(dashboardHTML))
}

// dashboardHTML polls /api/v1/stats every two seconds.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>partscout</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, system-ui, sans-serif; background: #0f172a; color: #e2e8f0; min-height: 100vh; }
        .header { background: #1e293b; padding: 1.25rem 2rem; border-bottom: 1px solid #475569; display: flex; justify-content: space-between; align-items: center; }
        .header h1 { font-size: 1.4rem; color: #38bdf8; }
        .header .uptime { font-size: 0.875rem; color: #94a3b8; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 1rem; padding: 2rem; }
        .card { background: #1e293b; border: 1px solid #334155; border-radius: 10px; padding: 1.25rem; }
        .card .label { font-size: 0.75rem; text-transform: uppercase; letter-spacing: 0.05em; color: #94a3b8; margin-bottom: 0.5rem; }
        .card .value { font-size: 1.8rem; font-weight: 700; }
        .card.ok .value { color: #4ade80; }
        .card.bad .value { color: #f87171; }
        .card.busy .value { color: #fbbf24; }
        table { margin: 0 2rem 2rem; border-collapse: collapse; width: calc(100% - 4rem); }
        th, td { text-align: left; padding: 0.5rem 0.75rem; border-bottom: 1px solid #334155; font-size: 0.875rem; }
        th { color: #94a3b8; font-weight: 600; }
    </style>
</head>
<body>
    <div class="header">
        <h1>partscout</h1>
        <span class="uptime" id="uptime"></span>
    </div>
    <div class="grid">
        <div class="card ok"><div class="label">Runs</div><div class="value" id="runs">0</div></div>
        <div class="card bad"><div class="label">Failures</div><div class="value" id="failures">0</div></div>
        <div class="card ok"><div class="label">Cache Hits</div><div class="value" id="cache_hits">0</div></div>
        <div class="card"><div class="label">Browser Launches</div><div class="value" id="launches">0</div></div>
        <div class="card busy"><div class="label">Running</div><div class="value" id="active">0</div></div>
        <div class="card busy"><div class="label">Jobs Queued</div><div class="value" id="jobs_pending">0</div></div>
        <div class="card bad"><div class="label">Rate Limited</div><div class="value" id="api_rate_limited_total">0</div></div>
        <div class="card bad"><div class="label">Busy Rejections</div><div class="value" id="api_busy_total">0</div></div>
    </div>
    <table>
        <thead><tr><th>Site</th><th>Runs</th></tr></thead>
        <tbody id="sites"></tbody>
    </table>
    <script>
        function set(id, v) { const el = document.getElementById(id); if (el && v !== undefined) el.textContent = v; }
        async function refresh() {
            try {
                const d = await (await fetch('/api/v1/stats')).json();
                const r = d.runner || {};
                ['runs', 'failures', 'cache_hits', 'launches', 'active'].forEach(k => set(k, r[k]));
                set('uptime', r.uptime ? 'up ' + r.uptime : '');
                set('jobs_pending', d.jobs_pending);
                const m = d.metrics || {};
                ['api_rate_limited_total', 'api_busy_total'].forEach(k => set(k, m[k]));
                const rows = Object.entries(r.sites || {}).sort();
                document.getElementById('sites').innerHTML = rows.map(([s, n]) => '<tr><td>' + s + '</td><td>' + n + '</td></tr>').join('');
            } catch (e) { console.error(e); }
        }
        refresh();
        setInterval(refresh, 2000);
    </script>
</body>
</html>`
