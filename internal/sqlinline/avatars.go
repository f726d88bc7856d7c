package sqlinline

const QSelectAvatarProfile = `--sql 2d704d0b-0273-4067-91eb-2b520bee5207
select id::text, name, face_reference_paths, environment_reference_paths,
       face_strength, environment_strength, physical_description
from avatar_profiles
where id = $1::uuid;
`
