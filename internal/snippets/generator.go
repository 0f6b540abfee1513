// Package snippets generates the browser script that mirrors server-side
// variant assignment.
package snippets

import (
	"bytes"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"github.com/landing-lab/landing-lab/internal/store"
)

type Format string

const (
	FormatJS   Format = "js"
	FormatHTML Format = "html"
)

type Config struct {
	Experiment *store.Experiment
	ServerURL  string
}

type SnippetFile struct {
	Filename string
	Content  string
}

type variantData struct {
	ID      string        `json:"id"`
	Percent float64       `json:"pct"`
	Patches []store.Patch `json:"patches"`
}

type templateData struct {
	ExperimentJSON string
	VariantsJSON   string
	ServerJSON     string
	ServerURL      string
	ExperimentID   string
	Active         bool
}

// Generate renders the snippet for one experiment. FormatJS returns the
// standalone script; FormatHTML also returns the tag that loads it from the
// server.
func Generate(format Format, cfg Config) ([]SnippetFile, error) {
	if cfg.Experiment == nil || len(cfg.Experiment.Variants) == 0 {
		return nil, fmt.Errorf("experiment has no variants")
	}

	data, err := buildTemplateData(cfg)
	if err != nil {
		return nil, err
	}

	script, err := render("script", scriptTemplate, data)
	if err != nil {
		return nil, err
	}

	files := []SnippetFile{{Filename: "vl.js", Content: script}}
	switch format {
	case FormatJS:
	case FormatHTML:
		tag, err := renderHTML("tag", tagTemplate, data)
		if err != nil {
			return nil, err
		}
		files = append(files, SnippetFile{Filename: "snippet.html", Content: tag})
	default:
		return nil, fmt.Errorf("unknown snippet format %q", format)
	}
	return files, nil
}

// Script is shorthand for the FormatJS output.
func Script(cfg Config) (string, error) {
	files, err := Generate(FormatJS, cfg)
	if err != nil {
		return "", err
	}
	return files[0].Content, nil
}

func buildTemplateData(cfg Config) (templateData, error) {
	exp := cfg.Experiment

	variants := make([]variantData, len(exp.Variants))
	for i, v := range exp.Variants {
		variants[i] = variantData{ID: v.ID, Percent: v.TrafficPercent, Patches: []store.Patch{}}
		if v.Implementation != nil && v.Implementation.Patches != nil {
			variants[i].Patches = v.Implementation.Patches
		}
	}

	variantsJSON, err := json.Marshal(variants)
	if err != nil {
		return templateData{}, err
	}
	expJSON, _ := json.Marshal(exp.ID)
	serverJSON, _ := json.Marshal(cfg.ServerURL)

	return templateData{
		ExperimentJSON: string(expJSON),
		VariantsJSON:   string(variantsJSON),
		ServerJSON:     string(serverJSON),
		ServerURL:      cfg.ServerURL,
		ExperimentID:   exp.ID,
		Active:         exp.Status == store.StatusActive,
	}, nil
}

func render(name, content string, data templateData) (string, error) {
	tmpl, err := template.New(name).Parse(content)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderHTML escapes values for their HTML context; the tag carries the
// server URL and experiment id into an attribute and a query string.
func renderHTML(name, content string, data templateData) (string, error) {
	tmpl, err := htmltemplate.New(name).Parse(content)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const tagTemplate = `<script src="{{.ServerURL}}/vl.js?experiment={{.ExperimentID}}" data-ll-experiment="{{.ExperimentID}}" defer></script>
`

// The bucket and variant walk must stay identical to assign.Bucket and
// assign.PickVariant. Patches are applied as data; nothing is evaluated.
const scriptTemplate = `(function(){
  var E={{.ExperimentJSON}};
  var S={{.ServerJSON}};
  var V={{.VariantsJSON}};
  var ACTIVE={{.Active}};

  var vid=localStorage.getItem('ll_vid');
  if(!vid){
    vid=crypto.randomUUID();
    localStorage.setItem('ll_vid',vid);
  }

  function bucket(e,v){
    return crypto.subtle.digest('SHA-256',new TextEncoder().encode(e+':'+v)).then(function(buf){
      var hex=Array.prototype.map.call(new Uint8Array(buf).slice(0,4),function(b){
        return ('0'+b.toString(16)).slice(-2);
      }).join('');
      return (parseInt(hex,16)%10000)/100;
    });
  }

  function pick(b){
    var cum=0;
    for(var i=0;i<V.length;i++){
      cum+=V[i].pct;
      if(V[i].pct>0&&cum>=b)return i;
    }
    return 0;
  }

  function apply(p){
    document.querySelectorAll(p.selector).forEach(function(el){
      switch(p.action){
        case 'text':el.textContent=p.value||'';break;
        case 'html':el.innerHTML=p.value||'';break;
        case 'attr':el.setAttribute(p.attribute,p.value||'');break;
        case 'class':if(p.value)el.classList.add(p.value);break;
        case 'style':el.setAttribute('style',(el.getAttribute('style')||'')+';'+(p.value||''));break;
        case 'hide':el.style.display='none';break;
      }
    });
  }

  bucket(E,vid).then(function(b){
    var variant=V[pick(b)];
    variant.patches.forEach(apply);
    try{document.documentElement.setAttribute('data-ll-'+E,variant.id);}catch(e){}
    if(!ACTIVE)return;

    var start=Date.now(),maxScroll=0,converted=false,cta=false,sent=false;

    window.addEventListener('scroll',function(){
      var h=document.documentElement.scrollHeight-window.innerHeight;
      if(h>0)maxScroll=Math.max(maxScroll,Math.min(100,Math.round(window.scrollY/h*100)));
    },{passive:true});

    document.querySelectorAll('[data-ll-convert]').forEach(function(el){
      el.addEventListener('click',function(){converted=true;});
    });
    document.querySelectorAll('[data-ll-cta]').forEach(function(el){
      el.addEventListener('click',function(){cta=true;});
    });

    function send(){
      if(sent)return;
      sent=true;
      navigator.sendBeacon(S+'/e',JSON.stringify({
        experiment:E,
        variant:variant.id,
        visitor:vid,
        data:{converted:converted,ctaClick:cta,timeOnPage:(Date.now()-start)/1000,scrollDepth:maxScroll}
      }));
    }

    window.addEventListener('pagehide',send);
    document.addEventListener('visibilitychange',function(){
      if(document.visibilityState==='hidden')send();
    });
  });
})();
`
