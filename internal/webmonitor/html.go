package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>Couch Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: sans-serif; background: #14161a; color: #e6e6e6; margin: 0; }
        .app { max-width: 1100px; margin: 0 auto; padding: 16px; }
        .header { display: flex; justify-content: space-between; align-items: center; }
        .grid { display: grid; grid-template-columns: 2fr 1fr; gap: 16px; margin-top: 16px; }
        .panel { background: #1e2127; border-radius: 8px; padding: 12px; }
        .badge { padding: 4px 10px; border-radius: 12px; font-size: 13px; background: #444; }
        .badge-alert { background: #c0392b; }
        .badge-ok { background: #27ae60; }
        img { width: 100%; border-radius: 4px; }
        table { width: 100%; font-size: 13px; border-collapse: collapse; }
        td { padding: 3px 0; }
        ul { padding-left: 18px; font-size: 13px; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <h1>Couch Monitor</h1>
            <span class="badge" id="status-badge">Waiting for data...</span>
        </div>
        <div class="grid">
            <div class="panel">
                <h2>Latest frame</h2>
                <img id="snapshot" src="/api/snapshot" alt="latest frame">
            </div>
            <div class="panel">
                <h2>Status</h2>
                <table id="stats"></table>
                <h2>Alerts</h2>
                <ul id="alerts"></ul>
            </div>
        </div>
    </div>
    <script>
        const badge = document.getElementById('status-badge');
        const stats = document.getElementById('stats');
        const alerts = document.getElementById('alerts');
        const snapshot = document.getElementById('snapshot');

        function renderStatus(payload) {
            const m = payload.monitor;
            const rows = [
                ['Watching', m.target + ' on ' + m.reference],
                ['Cycles', m.cycles_run + ' (' + m.failed_cycles + ' failed)'],
                ['Alerts', m.alerts + ' sent, ' + m.suppressed + ' suppressed'],
                ['Last cycle', m.last_cycle_ms + ' ms'],
                ['Uptime', Math.round(m.uptime_seconds) + ' s'],
            ];
            stats.innerHTML = rows.map(r => '<tr><td>' + r[0] + '</td><td>' + r[1] + '</td></tr>').join('');

            const latest = payload.latest_detection;
            if (!latest) return;
            if (latest.error) {
                badge.className = 'badge';
                badge.textContent = 'Error: ' + latest.error;
            } else if (latest.condition_met) {
                badge.className = 'badge badge-alert';
                badge.textContent = 'ON ' + m.reference.toUpperCase() + ' | overlap: ' + latest.overlap_ratio.toFixed(2);
            } else {
                badge.className = 'badge badge-ok';
                badge.textContent = 'off ' + m.reference;
            }
        }

        function addAlert(text) {
            const li = document.createElement('li');
            li.textContent = new Date().toLocaleTimeString() + ' ' + text;
            alerts.prepend(li);
            while (alerts.children.length > 20) alerts.lastChild.remove();
        }

        new EventSource('/api/status/stream').onmessage = (e) => renderStatus(JSON.parse(e.data));

        new EventSource('/api/detections/stream').onmessage = () => {
            snapshot.src = '/api/snapshot?t=' + Date.now();
        };

        async function connectAlerts() {
            const pc = new RTCPeerConnection({ iceServers: [{ urls: 'stun:stun.l.google.com:19302' }] });
            const dc = pc.createDataChannel('alerts');
            dc.onmessage = (e) => {
                const msg = JSON.parse(e.data);
                if (msg.type === 'alert' && msg.alert) {
                    addAlert(msg.alert.target + ' on ' + msg.alert.reference + ' (' + msg.alert.overlap_ratio.toFixed(2) + ')');
                }
            };
            await pc.setLocalDescription(await pc.createOffer());
            await new Promise((resolve) => {
                if (pc.iceGatheringState === 'complete') return resolve();
                pc.onicegatheringstatechange = () => pc.iceGatheringState === 'complete' && resolve();
            });
            const res = await fetch('/api/webrtc/offer', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ sdp: pc.localDescription.sdp, type: pc.localDescription.type }),
            });
            if (!res.ok) return;
            await pc.setRemoteDescription(await res.json());
        }
        connectAlerts().catch((err) => console.warn('alerts channel unavailable', err));
    </script>
</body>
</html>
`
