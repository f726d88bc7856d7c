package sqlinline

const QSelectAppSettings = `--sql 66c9fca0-48f7-4411-8828-d6fcafb3eb3b
select key, value
from app_settings
where key = any($1::text[]);
`

const QUpsertAppSetting = `--sql 0279bfbe-ba52-4b78-afb5-a225e099b8a4
insert into app_settings (key, value, updated_at)
values ($1, $2, now())
on conflict (key) do update
set value = excluded.value,
    updated_at = now();
`
