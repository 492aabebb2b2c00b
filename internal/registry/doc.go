// Package registry discovers and holds the installed configuration units.
//
// Units live in three tiers. Plugins and projects are listed in the
// INSTALLED_PLUGINS and INSTALLED_PROJECTS settings; the common tier holds the
// built-in core config and the user's common config named after the settings
// module. Each tier is a Store populated once, in the order plugins, projects,
// commons, by Core.Setup. After a tier is ready its managers modules are
// loaded through a ManagerLoader.
package registry
