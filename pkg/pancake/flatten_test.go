package pancake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatten(t *testing.T, templates MemoryLoader, name string) string {
	t.Helper()
	out, err := NewParser(templates).Flatten(name)
	require.NoError(t, err)
	return out
}

func TestFlattenScenarios(t *testing.T) {
	tests := map[string]struct {
		templates MemoryLoader
		entry     string
		want      string
	}{
		"override": {
			templates: MemoryLoader{
				"base":  `<title>{% block t %}{% endblock %}</title>`,
				"child": `{% extends "base" %}{% block t %}Hi{% endblock %}`,
			},
			entry: "child",
			want:  `<title>Hi</title>`,
		},
		"defaultKept": {
			templates: MemoryLoader{
				"base":  `<title>{% block t %}Default{% endblock %}</title>`,
				"child": `{% extends "base" %}`,
			},
			entry: "child",
			want:  `<title>Default</title>`,
		},
		"loadsMerged": {
			templates: MemoryLoader{
				"loadbase": `{% load a %}<p>{% block t %}{% endblock %}</p>`,
				"child":    `{% extends "loadbase" %}{% load b %}{% block t %}X{% endblock %}`,
			},
			entry: "child",
			want:  `{% load a b %}<p>X</p>`,
		},
		"nestedInner": {
			templates: MemoryLoader{
				"withinbase": `<title>{% block outer %}{% block inner %}Welcome{% endblock %} | Site{% endblock %}</title>`,
				"child":      `{% extends "withinbase" %}{% block inner %}Hi{% endblock %}`,
			},
			entry: "child",
			want:  `<title>Hi | Site</title>`,
		},
		"comment": {
			templates: MemoryLoader{
				"t": `lo{% comment %}anything{% endcomment %}ve`,
			},
			entry: "t",
			want:  `love`,
		},
		"nestedComment": {
			templates: MemoryLoader{
				"t": `a{% comment %}x{% comment %}y{% endcomment %}z{% endcomment %}b`,
			},
			entry: "t",
			want:  `az{% endcomment %}b`,
		},
		"commentedDirectives": {
			templates: MemoryLoader{
				"t": `{% comment %}{% load x %}{% extends "missing" %}{% block b %}{% endcomment %}t`,
			},
			entry: "t",
			want:  `t`,
		},
		"threeLevels": {
			templates: MemoryLoader{
				"base": `[{% block x %}base{% endblock %}]`,
				"mid":  `{% extends "base" %}{% block x %}mid{% endblock %}`,
				"leaf": `{% extends "mid" %}{% block x %}leaf{% endblock %}`,
			},
			entry: "leaf",
			want:  `[leaf]`,
		},
		"midOnly": {
			templates: MemoryLoader{
				"base": `[{% block x %}base{% endblock %}|{% block y %}y{% endblock %}]`,
				"mid":  `{% extends "base" %}{% block x %}mid{% endblock %}`,
				"leaf": `{% extends "mid" %}{% block y %}leaf{% endblock %}`,
			},
			entry: "leaf",
			want:  `[mid|leaf]`,
		},
		"textOutsideBlocksIgnored": {
			templates: MemoryLoader{
				"base":  `<{% block t %}{% endblock %}>`,
				"child": "{% extends \"base\" %}\nignored\n{% block t %}kept{% endblock %}\n",
			},
			entry: "child",
			want:  `<kept>`,
		},
		"outerOverrideDropsInner": {
			templates: MemoryLoader{
				"base":  `{% block outer %}<{% block inner %}in{% endblock %}>{% endblock %}`,
				"child": `{% extends "base" %}{% block outer %}replaced{% endblock %}{% block inner %}IN{% endblock %}`,
			},
			entry: "child",
			want:  `replaced`,
		},
		"unclosedBlock": {
			templates: MemoryLoader{
				"t": `a{% block x %}b`,
			},
			entry: "t",
			want:  `ab`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, flatten(t, test.templates, test.entry))
		})
	}
}

func TestFlattenNoInheritanceIdentity(t *testing.T) {
	src := "<ul>\n{%  for x in items  %}<li>{{ x|upper }}</li>{%endfor%}\n</ul>{% url 'home' %}{{user.name}}"
	assert.Equal(t, src, flatten(t, MemoryLoader{"t": src}, "t"))
}

func TestFlattenIdempotent(t *testing.T) {
	templates := MemoryLoader{
		"base":  `{% load z %}<html>{% block body %}{% endblock %}{% if x %}{{ x }}{% endif %}</html>`,
		"child": `{% extends "base" %}{% load a %}{% block body %}<p>{% cycle 'a' 'b' %}</p>{% endblock %}`,
	}
	first := flatten(t, templates, "child")
	assert.Equal(t, `{% load a z %}<html><p>{% cycle 'a' 'b' %}</p>{% if x %}{{ x }}{% endif %}</html>`, first)

	second := flatten(t, MemoryLoader{"out": first}, "out")
	assert.Equal(t, first, second)
}

func TestFlattenLoadAggregation(t *testing.T) {
	templates := MemoryLoader{
		"base":  `{% load z %}{% load a %}<{% block b %}{% endblock %}>{% load a %}`,
		"inc":   `{% load m %}I`,
		"child": `{% extends "base" %}{% load c z %}{% block b %}{% include "inc" %}{% endblock %}`,
	}
	assert.Equal(t, `{% load a c m z %}<I>`, flatten(t, templates, "child"))
}

func TestFlattenBlockSuper(t *testing.T) {
	t.Run("repeated", func(t *testing.T) {
		templates := MemoryLoader{
			"base":  `{% block t %}B{% endblock %}`,
			"child": `{% extends "base" %}{% block t %}{{ block.super }}-{{ block.super }}-{{ block.super }}{% endblock %}`,
		}
		assert.Equal(t, `B-B-B`, flatten(t, templates, "child"))
	})

	t.Run("skipsAncestorWithoutBlock", func(t *testing.T) {
		templates := MemoryLoader{
			"base": `{% block t %}B{% endblock %}`,
			"mid":  `{% extends "base" %}`,
			"leaf": `{% extends "mid" %}{% block t %}{{ block.super }}!{% endblock %}`,
		}
		assert.Equal(t, `B!`, flatten(t, templates, "leaf"))
	})

	t.Run("chained", func(t *testing.T) {
		templates := MemoryLoader{
			"base": `({% block t %}B{% endblock %})`,
			"mid":  `{% extends "base" %}{% block t %}{{ block.super }}M{% endblock %}`,
			"leaf": `{% extends "mid" %}{% block t %}{{ block.super }}L{% endblock %}`,
		}
		assert.Equal(t, `(BML)`, flatten(t, templates, "leaf"))
	})

	t.Run("keepsNestedBlocksOverridable", func(t *testing.T) {
		templates := MemoryLoader{
			"base":  `{% block outer %}<{% block inner %}in{% endblock %}>{% endblock %}`,
			"child": `{% extends "base" %}{% block outer %}{{ block.super }}!{% endblock %}{% block inner %}IN{% endblock %}`,
		}
		assert.Equal(t, `<IN>!`, flatten(t, templates, "child"))
	})

	t.Run("outsideBlock", func(t *testing.T) {
		templates := MemoryLoader{
			"base":  `{% block t %}B{% endblock %}`,
			"child": `{% extends "base" %}{{ block.super }}{% block t %}C{% endblock %}`,
		}
		assert.Equal(t, `C`, flatten(t, templates, "child"))
	})
}

func TestFlattenInclude(t *testing.T) {
	templates := MemoryLoader{
		"inc":    `I{{ v }}`,
		"header": `<h>{% block title %}T{% endblock %}</h>`,
		"plain":  `a{% include "inc" %}b`,
		"with":   `a{% include 'inc' with v=1 w=2 %}b`,
		"only":   `a{% include "inc" with v=1 only %}b`,
		"var":    `a{%include tpl%}b`,
		"page":   `{% include "header" %}<body>{% block body %}{% endblock %}</body>`,
		"child":  `{% extends "page" %}{% block title %}C{% endblock %}{% block body %}B{% endblock %}`,
	}

	assert.Equal(t, `aI{{ v }}b`, flatten(t, templates, "plain"))
	assert.Equal(t, `a{% with v=1 w=2 %}I{{ v }}{% endwith %}b`, flatten(t, templates, "with"))
	assert.Equal(t, `a{% include "inc" with v=1 only %}b`, flatten(t, templates, "only"))
	assert.Equal(t, `a{%include tpl%}b`, flatten(t, templates, "var"))
	assert.Equal(t, `<h>C</h><body>B</body>`, flatten(t, templates, "child"))
}

// A block first defined below the base template is registered but never
// reaches the output, even when a more specific template overrides it.
func TestFlattenOrphanedOverride(t *testing.T) {
	templates := MemoryLoader{
		"base": `<{% block a %}A{% endblock %}>`,
		"mid":  `{% extends "base" %}{% block fresh %}M{% endblock %}`,
		"leaf": `{% extends "mid" %}{% block fresh %}L{% endblock %}`,
	}
	leaf, err := NewParser(templates).Parse("leaf")
	require.NoError(t, err)

	assert.Equal(t, `<A>`, Flatten(leaf))

	base := leaf.Chain()[0]
	id, ok := base.Blocks["fresh"]
	require.True(t, ok)
	assert.Equal(t, []Leaf{{Text: "L"}}, base.Arena().Node(id).Leaves)
}

func TestFlattenCachesResult(t *testing.T) {
	templates := MemoryLoader{
		"base":  `{% load x %}{% block t %}B{% endblock %}`,
		"child": `{% extends "base" %}{% block t %}{{ block.super }}C{% endblock %}`,
	}
	child, err := NewParser(templates).Parse("child")
	require.NoError(t, err)

	first := Flatten(child)
	assert.Equal(t, `{% load x %}BC`, first)
	assert.Equal(t, first, Flatten(child))
}

func TestFlattenAncestorAfterDescendant(t *testing.T) {
	templates := MemoryLoader{
		"base":  `{% load a %}<{% block t %}B{% endblock %}>`,
		"child": `{% extends "base" %}{% load b %}{% block t %}C{% endblock %}`,
	}
	child, err := NewParser(templates).Parse("child")
	require.NoError(t, err)

	assert.Equal(t, `{% load a b %}<C>`, Flatten(child))
	// The base shares its nodes with child, which now hold the merged tree.
	assert.Equal(t, `{% load a b %}<C>`, Flatten(child.Parent))
	assert.Equal(t, `{% load a b %}<C>`, Flatten(child))

	assert.Equal(t, `{% load a %}<B>`, flatten(t, templates, "base"))
}

// Blocks of an included template join the block namespace of the template
// that includes them, so descendants of the includer can override them.
func TestFlattenIncludedBlockOverridable(t *testing.T) {
	templates := MemoryLoader{
		"header": `<h>{% block title %}T{% endblock %}</h>`,
		"page":   `{% include "header" %}|{% block body %}{% endblock %}`,
		"child":  `{% extends "page" %}{% block title %}C{% endblock %}`,
	}
	page, err := NewParser(templates).Parse("page")
	require.NoError(t, err)
	assert.Contains(t, page.Blocks, "title")

	assert.Equal(t, `<h>T</h>|`, Flatten(page))
	assert.Equal(t, `<h>C</h>|`, flatten(t, templates, "child"))
}

func TestFlattenBlockOverridesSelf(t *testing.T) {
	// The child's block contains another copy of the overridden block.
	templates := MemoryLoader{
		"base":  `{% block outer %}<{% block inner %}i{% endblock %}>{% endblock %}`,
		"child": `{% extends "base" %}{% block inner %}[{% block outer %}{{ block.super }}{% endblock %}]{% endblock %}`,
	}
	out, err := NewParser(templates).Flatten("child")
	require.NoError(t, err)
	assert.Equal(t, `<[]>`, out)
}
